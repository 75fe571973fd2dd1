package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultMaxBody = 1 << 20

// Handler serves the ingestor over gin. Register it for every method so the
// ingestor can answer wrong methods itself. The body is only read for the
// configured method.
func Handler(in *Ingestor, maxBody int64) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return func(c *gin.Context) {
		var body []byte
		if in.AcceptsMethod(c.Request.Method) && c.Request.Body != nil {
			b, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					c.String(http.StatusRequestEntityTooLarge, MsgInvalid)
					return
				}
				c.String(http.StatusBadRequest, MsgIrrelevant)
				return
			}
			body = b
		}

		resp := in.Handle(c.Request.Context(), c.Request.Method, body)
		if resp.Allow != "" {
			c.Header("Allow", resp.Allow)
		}
		c.Set("webhook_outcome", string(resp.Outcome))
		c.String(resp.Status, resp.Body)
	}
}
