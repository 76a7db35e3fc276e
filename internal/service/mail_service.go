package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
)

const (
	defaultMessageCount = 10
	maxMessageCount     = 50
)

type accessTokenSource interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

type messageLister interface {
	RecentMessages(ctx context.Context, accessToken string, top int) ([]graph.Message, error)
}

// MailService reads the signed-in user's mailbox with a refreshed access token.
type MailService struct {
	tokens   accessTokenSource
	provider messageLister
	logger   *zap.Logger
}

// NewMailService constructs a MailService.
func NewMailService(tokens accessTokenSource, provider messageLister, logger *zap.Logger) *MailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailService{tokens: tokens, provider: provider, logger: logger}
}

// RecentMessages returns up to top of the newest messages. Zero means the default count.
func (s *MailService) RecentMessages(ctx context.Context, userID string, top int) ([]dto.MessageSummary, error) {
	if top <= 0 {
		top = defaultMessageCount
	}
	if top > maxMessageCount {
		top = maxMessageCount
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.provider.RecentMessages(ctx, token, top)
	if err != nil {
		s.logger.Warn("listing messages failed", zap.String("user_id", userID), zap.Error(err))
		return nil, providerFailure(err, "failed to list messages")
	}

	out := make([]dto.MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		from := "Unknown"
		if m.From != nil && m.From.EmailAddress.Name != "" {
			from = m.From.EmailAddress.Name
		}
		out = append(out, dto.MessageSummary{
			ID:               m.ID,
			Subject:          m.Subject,
			ReceivedDateTime: m.ReceivedDateTime,
			From:             from,
			IsRead:           m.IsRead,
		})
	}
	return out, nil
}
