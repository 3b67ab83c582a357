package services

import (
	"fmt"
	"strconv"
	"time"

	"gate-service/internal/models"
)

// NotificationKind selects the payload variant
type NotificationKind string

const (
	KindBroadcast     NotificationKind = "broadcast"
	KindActionRequest NotificationKind = "action_request"
)

// Action identifiers carried both as webpush button ids and in the data
// payload, since installed-app and web reception paths decode differently.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// BroadcastInput describes an admin broadcast or ad hoc send
type BroadcastInput struct {
	Title  string
	Body   string
	Data   map[string]string
	Tokens []string
}

// Composer builds provider-agnostic push payloads. Payloads for the same
// visitor request always carry the same tag so tag-aware channels replace
// rather than stack notifications.
type Composer struct{}

// NewComposer creates a new composer
func NewComposer() *Composer {
	return &Composer{}
}

// DeriveTag picks the dedup tag: explicit tag if the caller set one, else
// the visitor/request id, else a timestamp fallback for ad hoc sends with
// no stable identity.
func DeriveTag(explicit, visitorID string, now time.Time) string {
	if explicit != "" {
		return explicit
	}
	if visitorID != "" {
		return visitorID
	}
	return "msg_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// RequestTag is the dedup tag shared by every payload describing a request
func RequestTag(requestID string) string {
	return fmt.Sprintf("visitor_request_%s", requestID)
}

// ComposeBroadcast builds one multicast payload for the given token list
func (c *Composer) ComposeBroadcast(in BroadcastInput) *MulticastPayload {
	now := time.Now()
	tag := DeriveTag(in.Data["tag"], in.Data["visitorId"], now)

	data := make(map[string]string, len(in.Data)+3)
	for key, value := range in.Data {
		data[key] = value
	}
	data["click_action"] = "/"
	data["timestamp"] = strconv.FormatInt(now.UnixMilli(), 10)
	data["tag"] = tag

	return &MulticastPayload{
		Tokens:             in.Tokens,
		Title:              in.Title,
		Body:               in.Body,
		Tag:                tag,
		Data:               data,
		RequireInteraction: in.Data["requireInteraction"] == "true",
		Link:               "/",
	}
}

// ComposeActionSend builds individual action payloads from an ad hoc data
// map (the direct-send endpoint) rather than a stored request record.
func (c *Composer) ComposeActionSend(title, body string, data map[string]string, tokens []string) []*PushPayload {
	tag := DeriveTag(data["tag"], data["visitorId"], time.Now())

	payloads := make([]*PushPayload, 0, len(tokens))
	for _, token := range tokens {
		payloadData := make(map[string]string, len(data)+2)
		for key, value := range data {
			payloadData[key] = value
		}
		payloadData["click_action"] = "/"
		payloadData["tag"] = tag

		payloads = append(payloads, &PushPayload{
			Token: token,
			Title: title,
			Body:  body,
			Tag:   tag,
			Data:  payloadData,
			Actions: []PushAction{
				{ID: ActionApprove, Title: "Approve"},
				{ID: ActionReject, Title: "Reject"},
			},
			RequireInteraction: true,
			Link:               "/",
		})
	}
	return payloads
}

// ComposeActionRequest builds one individual payload per target token for a
// visitor request, embedding the approval credential and the approve/reject
// actions.
func (c *Composer) ComposeActionRequest(request *models.VisitorRequest, tokens []string) []*PushPayload {
	tag := RequestTag(request.ID.String())

	approvalToken := request.ApprovalToken
	if approvalToken == "" {
		// Requests created before tokens were introduced
		approvalToken = "legacy"
	}

	payloads := make([]*PushPayload, 0, len(tokens))
	for _, token := range tokens {
		payloads = append(payloads, &PushPayload{
			Token: token,
			Title: "New Visitor Request",
			Body:  fmt.Sprintf("%s wants to visit", request.VisitorName),
			Tag:   tag,
			Data: map[string]string{
				"visitorId":          request.ID.String(),
				"residencyId":        request.ResidencyID,
				"actionType":         "VISITOR_REQUEST",
				"approvalToken":      approvalToken,
				"visitorName":        request.VisitorName,
				"purpose":            request.Purpose,
				"click_action":       "/",
				"tag":                tag,
				"requireInteraction": "true",
			},
			Actions: []PushAction{
				{ID: ActionApprove, Title: "Approve"},
				{ID: ActionReject, Title: "Reject"},
			},
			RequireInteraction: true,
			Link:               "/",
		})
	}
	return payloads
}
