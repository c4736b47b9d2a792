package audit

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// captureWriter 在写出响应的同时留一份副本
// 操作完成后用来从响应体里解析记录标识
type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func newCaptureWriter(w gin.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, body: &bytes.Buffer{}}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
