// Package service implements the retrieve, compose and feedback requests on
// top of the lexicon store, the retriever, the composer and the feedback log.
// Requests are handled one at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/composer"
	"glyphos/pkg/config"
	"glyphos/pkg/feedback"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
	"glyphos/pkg/retrieval"
)

// contextTurns is how many prior user turns feed retrieval as context.
const contextTurns = 3

// Service answers wire requests.
type Service struct {
	store     *lexicon.Store
	retriever *retrieval.Retriever
	composer  *composer.Composer
	feedback  *feedback.Log
	log       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger, shared with the components the service builds.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = logging.OrNop(l) }
}

// New wires a Service over store and fb using cfg.
func New(store *lexicon.Store, fb *feedback.Log, cfg *config.Config, opts ...Option) *Service {
	s := &Service{store: store, feedback: fb, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.retriever = retrieval.New(store, cfg, retrieval.WithLogger(s.log))
	s.composer = composer.New(cfg, composer.WithLogger(s.log))
	return s
}

// Retrieve ranks glyphs for req.
func (s *Service) Retrieve(ctx context.Context, req protocol.RetrieveRequest) (protocol.RetrieveResponse, error) {
	res, err := s.retriever.Retrieve(ctx, retrieval.Request{
		Message: req.Message, Gate: req.Gate, K: req.K, Context: req.Context,
	})
	if err != nil {
		return protocol.RetrieveResponse{}, err
	}
	return res.Response(), nil
}

// Compose answers one conversation turn. A nil glyph_id retrieves the best
// glyph, with the conversation's prior turns as context. A glyph_id that is
// not an active glyph falls back to the generic reply, as does a request whose
// ctx expires before a glyph is picked. A reply grounded in a glyph is
// recorded in the usage log; every turn is recorded in the turn log. The logs
// are written even when ctx is done, so a fallback reply is never lost.
func (s *Service) Compose(ctx context.Context, req protocol.ComposeRequest) (protocol.ComposeResponse, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return protocol.ComposeResponse{}, &protocol.InvalidInputError{Field: "conversation_id", Reason: "empty"}
	}
	if req.TurnIndex < 0 {
		return protocol.ComposeResponse{}, &protocol.InvalidInputError{Field: "turn_index", Reason: "negative"}
	}

	glyph, err := s.pickGlyph(ctx, req)
	switch {
	case err != nil && ctx.Err() != nil && protocol.ErrorKind(err) != protocol.KindInvalidInput:
		s.log.Warn("compose deadline reached before retrieval; using fallback", zap.Error(err))
		glyph = nil
	case err != nil:
		return protocol.ComposeResponse{}, err
	}

	reply := s.composer.Compose(ctx, composer.Input{Message: req.Message, Glyph: glyph, TurnIndex: req.TurnIndex})
	resp := protocol.ComposeResponse{Reply: reply.Text, MissingElements: reply.MissingElements}

	turn := protocol.Turn{
		ConversationID: req.ConversationID,
		TurnIndex:      req.TurnIndex,
		UserInput:      req.Message,
		BotOutput:      reply.Text,
	}
	logCtx := context.WithoutCancel(ctx)
	if glyph != nil && !reply.Fallback {
		id := protocol.FormatID(glyph.ID)
		resp.UsedGlyphID = &id
		turn.GlyphID = &glyph.ID
		if _, err := s.store.RecordUsage(logCtx, protocol.UsageEntry{
			GlyphID:        glyph.ID,
			InputHash:      lexicon.HashInput(req.Message),
			ConversationID: req.ConversationID,
			TurnIndex:      req.TurnIndex,
		}); err != nil {
			return resp, fmt.Errorf("record usage: %w", err)
		}
	}
	if _, err := s.feedback.RecordTurn(logCtx, turn); err != nil {
		return resp, fmt.Errorf("record turn: %w", err)
	}

	s.log.Debug("composed",
		zap.String("conversation_id", req.ConversationID), zap.Int("turn_index", req.TurnIndex),
		zap.Bool("fallback", reply.Fallback), zap.Strings("missing", reply.MissingElements))
	return resp, nil
}

func (s *Service) pickGlyph(ctx context.Context, req protocol.ComposeRequest) (*protocol.Glyph, error) {
	if req.GlyphID != nil {
		id, err := protocol.ParseID(*req.GlyphID)
		if err != nil {
			return nil, err
		}
		g, err := s.store.Get(ctx, id)
		var nf *protocol.NotFoundError
		switch {
		case errors.As(err, &nf):
			s.log.Info("compose glyph not active; using fallback", zap.Int64("glyph_id", id))
			return nil, nil
		case err != nil:
			return nil, err
		}
		return &g, nil
	}

	prior, err := s.priorInputs(ctx, req.ConversationID, req.TurnIndex)
	if err != nil {
		return nil, err
	}
	res, err := s.retriever.Retrieve(ctx, retrieval.Request{Message: req.Message, K: 1, Context: prior})
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}
	g := res.Hits[0].Glyph
	return &g, nil
}

// priorInputs returns the user inputs of the last few turns before turn.
func (s *Service) priorInputs(ctx context.Context, conversationID string, turn int) ([]string, error) {
	turns, err := s.feedback.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range turns {
		if t.TurnIndex < turn {
			out = append(out, t.UserInput)
		}
	}
	if len(out) > contextTurns {
		out = out[len(out)-contextTurns:]
	}
	return out, nil
}

// Feedback appends one reaction.
func (s *Service) Feedback(ctx context.Context, req protocol.FeedbackRequest) (protocol.FeedbackResponse, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return protocol.FeedbackResponse{}, &protocol.InvalidInputError{Field: "conversation_id", Reason: "empty"}
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return protocol.FeedbackResponse{}, &protocol.InvalidInputError{Field: "rating", Reason: "must be 1-5"}
	}
	if _, err := s.feedback.Record(ctx, protocol.FeedbackEntry{
		ConversationID: req.ConversationID,
		TurnIndex:      req.TurnIndex,
		Rating:         req.Rating,
		CorrectionText: req.CorrectionText,
	}); err != nil {
		return protocol.FeedbackResponse{Stored: false}, err
	}
	return protocol.FeedbackResponse{Stored: true}, nil
}
