package serverutils

type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{Message: message, Data: data}
}

type APIError struct {
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}
