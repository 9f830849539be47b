package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/common"
)

// Notification topics understood by the email service
const (
	TopicActivation      = "activation"
	TopicResetCredential = "reset_credential"
	TopicPaymentReceived = "payment_received"
)

// Payload one notification message for the email service
type Payload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Client deliver notifications to the external email service
type Client interface {
	// Send post one notification payload under a topic
	Send(ctxt context.Context, topic string, payload Payload) error
}

// clientImpl implements Client
type clientImpl struct {
	common.Component
	baseURL string
	client  *http.Client
}

// GetClient define a notification Client against one email service endpoint
func GetClient(baseURL string, requestTimeout time.Duration) Client {
	logTags := log.Fields{
		"module":    "notify",
		"component": "email-client",
		"endpoint":  baseURL,
	}
	return &clientImpl{
		Component: common.Component{LogTags: logTags},
		baseURL:   baseURL,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// Send post one notification payload under a topic
func (c *clientImpl) Send(ctxt context.Context, topic string, payload Payload) error {
	body, err := json.Marshal(&payload)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Unable to serialize notification")
		return err
	}
	target := fmt.Sprintf("%s/notification/%s", c.baseURL, topic)
	request, err := http.NewRequestWithContext(ctxt, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Unable to define notification request")
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := c.client.Do(request)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Notification POST against %s failed", target,
		)
		return err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		err := fmt.Errorf("email service returned %d", response.StatusCode)
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Notification for %s rejected", payload.Username,
		)
		return err
	}
	log.WithFields(c.LogTags).Debugf("Sent %s notification for %s", topic, payload.Username)
	return nil
}
