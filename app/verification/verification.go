// Package verification restricts new members until they answer a challenge.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/gatekeeper/app/events"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/core/keylock"
	"github.com/m3rciful/gatekeeper/core/logger"
)

// Button verdicts.
const (
	TokenCorrect   = "correct"
	TokenIncorrect = "incorrect"
)

// Result is the outcome of a join or answer.
type Result string

const (
	ResultChallenged      Result = "challenged"
	ResultAlreadyPending  Result = "already_pending"
	ResultSkipped         Result = "skipped"
	ResultVerified        Result = "verified"
	ResultAlreadyVerified Result = "already_verified"
	ResultWrongAnswer     Result = "wrong_answer"
)

// Challenge is the question shown to new members.
type Challenge struct {
	Question string
	Correct  string
	Decoys   []string
}

// NamePlaceholder in Messages.Welcome is replaced by the member's display name.
const NamePlaceholder = "{name}"

// Messages are the texts sent during verification.
type Messages struct {
	Welcome         string
	Verified        string
	AlreadyVerified string
	WrongAnswer     string
}

// Options configure a Service.
type Options struct {
	Platform  platform.Port
	Pending   store.PendingStore
	Challenge Challenge
	Messages  Messages
	// Shuffle permutes answer buttons; rand.Shuffle when nil.
	Shuffle func(n int, swap func(i, j int))
	// NewID names a challenge; uuid when nil.
	NewID func() string
}

// Service runs the join, restrict, verify, unrestrict cycle.
// Transitions for the same user are serialized.
type Service struct {
	platform  platform.Port
	pending   store.PendingStore
	challenge Challenge
	msgs      Messages
	shuffle   func(n int, swap func(i, j int))
	newID     func() string
	locks     keylock.Map[int64]
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Platform == nil {
		return nil, errors.New("verification: nil platform")
	}
	if opts.Pending == nil {
		return nil, errors.New("verification: nil pending store")
	}
	if strings.TrimSpace(opts.Challenge.Correct) == "" || len(opts.Challenge.Decoys) == 0 {
		return nil, errors.New("verification: challenge needs a correct answer and decoys")
	}
	s := &Service{
		platform:  opts.Platform,
		pending:   opts.Pending,
		challenge: opts.Challenge,
		msgs:      opts.Messages,
		shuffle:   opts.Shuffle,
		newID:     opts.NewID,
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// OnJoin restricts the member and posts the challenge. A member already pending
// is left alone. When posting fails the restriction and the pending mark are
// rolled back together.
func (s *Service) OnJoin(ctx context.Context, chatID int64, member events.User) (Result, error) {
	if member.IsBot {
		return ResultSkipped, nil
	}
	unlock := s.locks.Lock(member.ID)
	defer unlock()

	added, err := s.pending.Add(ctx, member.ID)
	if err != nil {
		return "", fmt.Errorf("mark pending: %w", err)
	}
	if !added {
		logger.Info(ctx, logger.CompVerify, "verify.join",
			slog.Int64("user_id", member.ID),
			slog.String("result", string(ResultAlreadyPending)),
		)
		return ResultAlreadyPending, nil
	}

	if err := s.platform.Restrict(ctx, chatID, member.ID, platform.Muted()); err != nil {
		s.unmark(ctx, member.ID)
		return "", fmt.Errorf("restrict: %w", err)
	}

	id := s.newID()
	text := s.challenge.Question
	if s.msgs.Welcome != "" {
		text = strings.ReplaceAll(s.msgs.Welcome, NamePlaceholder, member.DisplayName()) + "\n" + text
	}
	if err := s.platform.SendText(ctx, chatID, text, s.buttons(id)); err != nil {
		detached := context.WithoutCancel(ctx)
		if uerr := s.platform.Restrict(detached, chatID, member.ID, platform.Member()); uerr != nil {
			logger.Error(ctx, logger.CompVerify, "verify.rollback",
				slog.Int64("user_id", member.ID),
				slog.String("err", uerr.Error()),
			)
		}
		s.unmark(ctx, member.ID)
		return "", fmt.Errorf("send challenge: %w", err)
	}

	logger.Info(ctx, logger.CompVerify, "verify.join",
		slog.Int64("user_id", member.ID),
		slog.String("challenge_id", id),
		slog.String("result", string(ResultChallenged)),
	)
	return ResultChallenged, nil
}

// OnAnswer handles a challenge button press by user.
func (s *Service) OnAnswer(ctx context.Context, chatID int64, callbackID string, user events.User, token string) (Result, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	verdict, challengeID, _ := strings.Cut(token, ":")
	attrs := []slog.Attr{
		slog.Int64("user_id", user.ID),
		slog.String("challenge_id", challengeID),
	}

	if verdict != TokenCorrect {
		s.acknowledge(ctx, callbackID, s.msgs.WrongAnswer)
		logger.Info(ctx, logger.CompVerify, "verify.answer",
			append(attrs, slog.String("result", string(ResultWrongAnswer)))...)
		return ResultWrongAnswer, nil
	}

	pending, err := s.pending.Contains(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("check pending: %w", err)
	}
	if !pending {
		s.acknowledge(ctx, callbackID, s.msgs.AlreadyVerified)
		logger.Info(ctx, logger.CompVerify, "verify.answer",
			append(attrs, slog.String("result", string(ResultAlreadyVerified)))...)
		return ResultAlreadyVerified, nil
	}

	if err := s.platform.Restrict(ctx, chatID, user.ID, platform.Member()); err != nil {
		return "", fmt.Errorf("lift restriction: %w", err)
	}
	if _, err := s.pending.Remove(context.WithoutCancel(ctx), user.ID); err != nil {
		// Still pending, so mute again and let the member answer once more.
		if rerr := s.platform.Restrict(context.WithoutCancel(ctx), chatID, user.ID, platform.Muted()); rerr != nil {
			logger.Error(ctx, logger.CompVerify, "verify.rollback",
				slog.Int64("user_id", user.ID),
				slog.String("err", rerr.Error()),
			)
		}
		return "", fmt.Errorf("clear pending: %w", err)
	}
	s.acknowledge(ctx, callbackID, s.msgs.Verified)
	logger.Info(ctx, logger.CompVerify, "verify.answer",
		append(attrs, slog.String("result", string(ResultVerified)))...)
	return ResultVerified, nil
}

// PendingCount returns how many members are waiting to answer.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.pending.Count(ctx)
}

func (s *Service) buttons(challengeID string) []platform.Button {
	buttons := make([]platform.Button, 0, len(s.challenge.Decoys)+1)
	buttons = append(buttons, platform.Button{Text: s.challenge.Correct, Token: TokenCorrect + ":" + challengeID})
	for _, d := range s.challenge.Decoys {
		buttons = append(buttons, platform.Button{Text: d, Token: TokenIncorrect + ":" + challengeID})
	}
	s.shuffle(len(buttons), func(i, j int) { buttons[i], buttons[j] = buttons[j], buttons[i] })
	return buttons
}

func (s *Service) unmark(ctx context.Context, userID int64) {
	if _, err := s.pending.Remove(context.WithoutCancel(ctx), userID); err != nil {
		logger.Error(ctx, logger.CompVerify, "verify.rollback",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (s *Service) acknowledge(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := s.platform.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.Warn(ctx, logger.CompVerify, "verify.ack",
			slog.String("err", err.Error()),
		)
	}
}
