package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/logiccrew/OutCalling/pkg/convai"
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/telephony"
	"go.uber.org/zap"
)

type outboundCallRequest struct {
	Number       string `json:"number"`
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"first_message"`
}

// OutboundCall places an outbound call whose TwiML callback carries the prompt and first message
func (h *Handlers) OutboundCall(c *gin.Context) {
	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
		return
	}

	query := url.Values{}
	query.Set(convai.ParamPrompt, req.Prompt)
	query.Set(convai.ParamFirstMessage, req.FirstMessage)
	twimlURL := fmt.Sprintf("https://%s/outbound-call-twiml?%s", h.publicHost(c), query.Encode())

	callSid, err := h.calls.PlaceCall(req.Number, twimlURL)
	if err != nil {
		h.logger.Error("failed to place outbound call", zap.String("to", req.Number), zap.Error(err))
		h.bus.Emit(events.CallPlaced, "", map[string]interface{}{"result": "failure"})
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to initiate call"})
		return
	}

	h.logger.Info("outbound call placed", zap.String("callSid", callSid), zap.String("to", req.Number))
	h.bus.Emit(events.CallPlaced, "", map[string]interface{}{"result": "success", "callSid": callSid})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Call initiated", "callSid": callSid})
}

// OutboundCallTwiML answers Twilio's callback: humans are connected to the media stream,
// answering machines get a voicemail message, anything else a short apology
func (h *Handlers) OutboundCallTwiML(c *gin.Context) {
	answeredBy := c.PostForm("AnsweredBy")
	if answeredBy == "" {
		answeredBy = c.Query("AnsweredBy")
	}

	var (
		doc string
		err error
	)
	switch answeredBy {
	case "human":
		var params []telephony.StreamParameter
		for _, name := range []string{convai.ParamPrompt, convai.ParamFirstMessage} {
			if v := c.Query(name); v != "" {
				params = append(params, telephony.StreamParameter{Name: name, Value: v})
			}
		}
		doc, err = telephony.ConnectStream(fmt.Sprintf("wss://%s/outbound-media-stream", h.publicHost(c)), params)
	case "machine_start":
		doc, err = telephony.SayAndHangup(h.cfg.VoicemailMessage)
	default:
		doc, err = telephony.SayAndHangup(h.cfg.MissedCallMessage)
	}
	if err != nil {
		h.logger.Error("failed to build twiml", zap.String("answeredBy", answeredBy), zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logger.Info("twiml served", zap.String("answeredBy", answeredBy))
	c.Data(http.StatusOK, "text/xml", []byte(doc))
}

// publicHost PUBLIC_HOST 优先，否则使用请求 Host
func (h *Handlers) publicHost(c *gin.Context) string {
	if h.cfg.PublicHost != "" {
		return h.cfg.PublicHost
	}
	return c.Request.Host
}
