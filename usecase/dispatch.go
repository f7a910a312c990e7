package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/dispatch"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	dispatchTimeout    = 15 * time.Second
	dispatchUserAgent  = "AIgent-CRM/1.0"
	maxGatewayResponse = 8 << 10
)

type dispatchService struct {
	cfg        coreconfig.ChannelsConfig
	httpClient *http.Client
}

// NewDispatchService builds the outbound gateway client for every channel.
func NewDispatchService(cfg coreconfig.ChannelsConfig) dispatch.IDispatchUsecase {
	return &dispatchService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: dispatchTimeout},
	}
}

// Send delivers one reply through its channel gateway. Failures come back
// as Result{Success:false}, never as an error.
func (s *dispatchService) Send(ctx context.Context, msg dispatch.OutboundMessage) dispatch.Result {
	switch msg.Channel {
	case crm.ChannelWhatsApp:
		return s.sendWhatsApp(ctx, msg)
	case crm.ChannelTelegram:
		return s.sendTelegram(ctx, msg)
	case crm.ChannelEmail:
		return s.sendEmail(ctx, msg)
	}
	return failure("unsupported channel: " + string(msg.Channel))
}

type whatsAppSendPayload struct {
	ChatID      string                 `json:"chatId"`
	ContentType string                 `json:"contentType"`
	Content     string                 `json:"content"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

func (s *dispatchService) sendWhatsApp(ctx context.Context, msg dispatch.OutboundMessage) dispatch.Result {
	if s.cfg.WhatsAppBaseURL == "" {
		return failure("whatsapp gateway not configured")
	}

	payload := whatsAppSendPayload{
		ChatID:      utils.WhatsAppChatID(msg.ChatID),
		ContentType: dispatch.ContentString,
		Content:     msg.Content,
	}
	if msg.MediaURL != "" {
		payload.ContentType = dispatch.ContentMediaFromURL
		payload.Content = msg.MediaURL
		if msg.Content != "" {
			payload.Options = map[string]interface{}{"caption": msg.Content}
		}
	}

	// En grupos el gateway solo notifica a quien aparece mencionado, así
	// que el texto lleva el @numero y options.mentions el id completo.
	if len(msg.Mentions) > 0 {
		ids := make([]string, len(msg.Mentions))
		tags := make([]string, len(msg.Mentions))
		for i, m := range msg.Mentions {
			digits := utils.NormalizePhone(m)
			ids[i] = digits + "@c.us"
			tags[i] = "@" + digits
		}
		if payload.Options == nil {
			payload.Options = map[string]interface{}{}
		}
		payload.Options["mentions"] = ids
		if payload.ContentType == dispatch.ContentString {
			payload.Content = strings.Join(tags, " ") + " " + payload.Content
		}
	}

	url := fmt.Sprintf("%s/client/sendMessage/%s", strings.TrimSuffix(s.cfg.WhatsAppBaseURL, "/"), msg.AgentID)
	headers := map[string]string{"x-api-key": s.cfg.WhatsAppAPIKey}

	if err := s.postJSON(ctx, url, headers, payload); err != nil {
		logrus.Errorf("[Dispatch] WhatsApp send to %s failed: %v", payload.ChatID, err)
		return failure(err.Error())
	}

	logrus.Debugf("[Dispatch] WhatsApp message delivered to %s", payload.ChatID)
	return dispatch.Result{Success: true}
}

type telegramSendPayload struct {
	AgentID  string `json:"agent_id"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

func (s *dispatchService) sendTelegram(ctx context.Context, msg dispatch.OutboundMessage) dispatch.Result {
	if s.cfg.TelegramBaseURL == "" {
		return failure("telegram gateway not configured")
	}

	payload := telegramSendPayload{
		AgentID:  msg.AgentID,
		ChatID:   msg.ChatID,
		Text:     msg.Content,
		MediaURL: msg.MediaURL,
	}

	url := strings.TrimSuffix(s.cfg.TelegramBaseURL, "/") + "/api/webhook/send"
	headers := map[string]string{"X-Service-Key": s.cfg.TelegramServiceKey}

	if err := s.postJSON(ctx, url, headers, payload); err != nil {
		logrus.Errorf("[Dispatch] Telegram send to %s failed: %v", msg.ChatID, err)
		return failure(err.Error())
	}

	logrus.Debugf("[Dispatch] Telegram message delivered to %s", msg.ChatID)
	return dispatch.Result{Success: true}
}

type emailSendPayload struct {
	FromEmail string   `json:"from_email"`
	ToEmail   string   `json:"to_email"`
	Subject   string   `json:"subject"`
	Message   string   `json:"message"`
	Metadata  crm.Meta `json:"metadata,omitempty"`
}

func (s *dispatchService) sendEmail(ctx context.Context, msg dispatch.OutboundMessage) dispatch.Result {
	if s.cfg.EmailWebhookURL == "" {
		return failure("email webhook not configured")
	}

	to := msg.ToEmail
	if to == "" {
		to = msg.ChatID
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Re: Your inquiry"
	}

	payload := emailSendPayload{
		FromEmail: msg.FromEmail,
		ToEmail:   to,
		Subject:   subject,
		Message:   msg.Content,
		Metadata:  msg.Meta,
	}

	if err := s.postJSON(ctx, s.cfg.EmailWebhookURL, nil, payload); err != nil {
		logrus.Errorf("[Dispatch] Email send to %s failed: %v", to, err)
		return failure(err.Error())
	}

	logrus.Debugf("[Dispatch] Email delivered to %s", to)
	return dispatch.Result{Success: true}
}

func (s *dispatchService) postJSON(ctx context.Context, url string, headers map[string]string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", dispatchUserAgent)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, truncateChars(string(data), 200))
	}
	return nil
}

func failure(detail string) dispatch.Result {
	return dispatch.Result{Success: false, Detail: detail}
}
