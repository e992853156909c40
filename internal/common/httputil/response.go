package httputil

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// APIResponse is the unified response envelope for every endpoint (spec.md
// §6.1): {success, data?, error?, count?}, adapted from the teacher's
// {success, message, data} shape.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   int         `json:"count,omitempty"`
}

// JSONResponse sends a JSON response with the unified envelope.
func JSONResponse(ctx *fasthttp.RequestCtx, success bool, data interface{}, errMsg string, count int, statusCode int) {
	resp := APIResponse{
		Success: success,
		Data:    data,
		Error:   errMsg,
		Count:   count,
	}
	body, _ := json.Marshal(resp)
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// JSONError is a convenience wrapper for error responses.
func JSONError(ctx *fasthttp.RequestCtx, errMsg string, statusCode int) {
	JSONResponse(ctx, false, nil, errMsg, 0, statusCode)
}

// JSONData is a convenience wrapper for success responses carrying a single
// data payload.
func JSONData(ctx *fasthttp.RequestCtx, data interface{}, statusCode int) {
	JSONResponse(ctx, true, data, "", 0, statusCode)
}

// JSONList is a convenience wrapper for success responses carrying a
// collection, populating count from len(items) via the caller.
func JSONList(ctx *fasthttp.RequestCtx, data interface{}, count int, statusCode int) {
	JSONResponse(ctx, true, data, "", count, statusCode)
}

// JSONSuccess is a convenience wrapper for success responses with no data.
func JSONSuccess(ctx *fasthttp.RequestCtx, statusCode int) {
	JSONResponse(ctx, true, nil, "", 0, statusCode)
}
