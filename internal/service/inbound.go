package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"smsbridge/internal/metrics"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"
	"smsbridge/pkg/matrix"

	"github.com/sirupsen/logrus"
)

// mappingTokenPattern matches a leading token like "#123", with optional
// whitespace separating it from the message text.
var mappingTokenPattern = regexp.MustCompile(`^#(\d+)\s*`)

// TokenResolver resolves a (token, virtual user) pair to a room.
type TokenResolver interface {
	ResolveMappingToken(ctx context.Context, token int, userID string) (string, error)
}

// InboundRouter maps an arriving SMS to a target room. Replies are
// best-effort; nothing on this path goes through the delivery queue.
type InboundRouter struct {
	tokens        TokenResolver
	client        matrix.Client
	serverName    string
	defaultRoomID string
	templates     models.Templates
	metrics       *metrics.Registry
	logger        *logrus.Logger
}

func NewInboundRouter(tokens TokenResolver, client matrix.Client, serverName, defaultRoomID string, templates models.Templates, registry *metrics.Registry, logger *logrus.Logger) *InboundRouter {
	return &InboundRouter{
		tokens:        tokens,
		client:        client,
		serverName:    serverName,
		defaultRoomID: defaultRoomID,
		templates:     templates,
		metrics:       registry,
		logger:        logger,
	}
}

// ReceiveSMS routes one inbound SMS and returns the reply to text back, or
// the empty string for no reply. A malformed originating number is a fatal
// input error; send failures propagate to the caller unretried.
func (r *InboundRouter) ReceiveSMS(ctx context.Context, body, fromNumber string) (string, error) {
	virtualID, err := validation.VirtualUserID(fromNumber, r.serverName)
	if err != nil {
		return "", err
	}

	token, stripped, hasToken := parseMappingToken(body)

	if hasToken {
		roomID, err := r.tokens.ResolveMappingToken(ctx, token, virtualID)
		if err != nil {
			return "", err
		}
		if roomID != "" {
			r.logger.WithFields(logrus.Fields{
				"roomId": roomID,
				"token":  token,
			}).Debug("Routing inbound SMS via mapping token")
			if _, err := r.client.SendMessage(ctx, matrix.SendMessageRequest{
				RoomID:   roomID,
				Body:     stripped,
				AsUserID: virtualID,
			}); err != nil {
				return "", err
			}
			r.metrics.IncrementCounter("inbound_routed")
			return "", nil
		}
	}

	if r.defaultRoomID != "" {
		// Forward the untouched body so an unresolved token stays
		// visible to the room.
		r.logger.WithField("roomId", r.defaultRoomID).Debug("Routing inbound SMS to default room")
		if _, err := r.client.SendMessage(ctx, matrix.SendMessageRequest{
			RoomID: r.defaultRoomID,
			Body:   body,
		}); err != nil {
			return "", err
		}
		r.metrics.IncrementCounter("inbound_default_room")
		return r.fallbackReply(hasToken, r.templates.MissingTokenWithDefaultRoom), nil
	}

	r.logger.Debug("Inbound SMS carries no resolvable token and no default room is configured, ignoring")
	r.metrics.IncrementCounter("inbound_dropped")
	return r.fallbackReply(hasToken, r.templates.MissingTokenWithoutDefaultRoom), nil
}

func (r *InboundRouter) fallbackReply(hadToken bool, missingTemplate string) string {
	if hadToken && r.templates.UnknownToken != "" {
		return r.templates.UnknownToken
	}
	return missingTemplate
}

func parseMappingToken(body string) (int, string, bool) {
	match := mappingTokenPattern.FindStringSubmatch(body)
	if match == nil {
		return 0, body, false
	}
	token, err := strconv.Atoi(match[1])
	if err != nil {
		// Digit runs too long for an int are not tokens.
		return 0, body, false
	}
	return token, strings.TrimPrefix(body, match[0]), true
}
