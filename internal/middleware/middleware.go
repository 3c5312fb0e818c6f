package middleware

import (
	"net/http"
	"strconv"

	"github.com/chatcfd/chatcfd-api/internal/handlers"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

var HealthHandler = Wrap(handlers.HealthHandler)
var ChatHandler = Wrap(handlers.ChatHandler)
var BipGenerateHandler = Wrap(handlers.BipGenerateHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})

		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc() //metrics
	}
}

func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Debug("New request received")

	re = injectTrace(re)
	re = rateLimiter(re)
	return re
}
