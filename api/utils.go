package api

import "github.com/judgegodwins/chess-relay/http_utils"

func errorResponse(msg string) http_utils.BaseResponse {
	return http_utils.NewBaseResponse(false, msg)
}

func successResponse[T interface{}](msg string, data T) http_utils.DataResponse {
	return http_utils.NewDataResponse(msg, data)
}
