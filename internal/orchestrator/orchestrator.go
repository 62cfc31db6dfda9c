// Package orchestrator runs one chat turn: load the user's parameters, ask
// the model, extract the hidden scores, smooth them in, persist on change.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/codec"
	"github.com/danielpatrickdp/afinia/internal/logging"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/session"
	"github.com/danielpatrickdp/afinia/internal/signals"
	"github.com/danielpatrickdp/afinia/internal/state"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// #region orchestrator-struct

// Deps are the collaborators injected into an Orchestrator. Recorder and
// Logger may be nil.
type Deps struct {
	Store     state.Store
	Sessions  session.Store
	Client    codec.Client
	Extractor *signals.Extractor
	Policy    *update.Policy
	Recorder  logging.Recorder
	Logger    *zap.Logger
}

// Orchestrator is safe for concurrent use as long as its collaborators are.
type Orchestrator struct {
	config    Config
	system    string
	store     state.Store
	sessions  session.Store
	client    codec.Client
	extractor *signals.Extractor
	policy    *update.Policy
	recorder  logging.Recorder
	logger    *zap.Logger
}

// #endregion orchestrator-struct

// #region constructor

// New wires an orchestrator. The system prompt is built once from the
// extractor's markers and the policy mode.
func New(config Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Sessions == nil || deps.Client == nil {
		return nil, errors.New("orchestrator: store, sessions and client are required")
	}
	if deps.Extractor == nil {
		deps.Extractor = signals.NewExtractor(signals.DefaultExtractorConfig())
	}
	if deps.Policy == nil {
		deps.Policy = update.NewPolicy(update.DefaultUpdateConfig(), nil)
	}
	if deps.Recorder == nil {
		deps.Recorder = logging.NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	openMarker, closeMarker := deps.Extractor.Markers()
	system, err := SystemPrompt(deps.Policy.Config().Mode, openMarker, closeMarker)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		config:    config,
		system:    system,
		store:     deps.Store,
		sessions:  deps.Sessions,
		client:    deps.Client,
		extractor: deps.Extractor,
		policy:    deps.Policy,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}, nil
}

// #endregion constructor

// #region parameters

// Parameters returns the user's current set.
func (o *Orchestrator) Parameters(ctx context.Context, userID string) (params.Set, error) {
	id, err := state.ValidUserID(userID)
	if err != nil {
		return nil, err
	}
	return o.store.Load(ctx, id), nil
}

// SaveParameters merges raw over the stored set and persists it. This is the
// operator path: the overall level may be set directly, unknown keys are
// ignored and values are clamped.
func (o *Orchestrator) SaveParameters(ctx context.Context, userID string, raw map[string]any) (params.Set, error) {
	id, err := state.ValidUserID(userID)
	if err != nil {
		return nil, err
	}
	merged, dropped := params.Merge(o.store.Load(ctx, id), raw)
	if len(dropped) > 0 {
		o.logger.Debug("ignored parameter keys", zap.String("user", id), zap.Strings("keys", dropped))
	}
	if err := o.store.Save(ctx, id, merged); err != nil {
		o.logger.Error("save parameters", zap.String("user", id), zap.Error(err))
		return nil, err
	}
	return merged, nil
}

// #endregion parameters

// #region turn

// Turn runs one chat exchange. ErrSaveFailed is returned together with a
// populated result so the caller can still show the reply.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	id, err := state.ValidUserID(req.UserID)
	if err != nil {
		return TurnResult{}, err
	}

	turnID := uuid.New().String()
	log := o.logger.With(zap.String("user", id), zap.String("turn", turnID))

	current, version := o.load(ctx, id)
	sess := o.sessions.Get(id)

	resp, err := o.complete(ctx, sess, message)
	if err != nil {
		log.Error("model call failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return TurnResult{}, err
	}

	ext := o.extractor.Extract(resp.Text)
	if ext.Malformed {
		log.Warn("ignoring malformed score block", zap.Error(ext.Err))
	}
	if len(ext.Dropped) > 0 {
		log.Debug("dropped score keys", zap.Strings("keys", ext.Dropped))
	}
	if ext.Visible == "" {
		log.Error("model reply had no visible text")
		return TurnResult{}, ErrEmptyCompletion
	}

	result := TurnResult{
		TurnID:     turnID,
		UserID:     id,
		Reply:      ext.Visible,
		Parameters: current,
		Malformed:  ext.Malformed,
		VersionID:  version,
	}

	applied, newVersion, saveErr := o.commit(ctx, id, current, version, ext.Proposal, message)
	result.Changes = applied.Applied()
	result.Changed = applied.Changed
	decision := logging.DecisionNoOp
	switch {
	case saveErr != nil:
		decision = logging.DecisionSaveFailed
		log.Error("save parameters", zap.Error(saveErr))
	case applied.Changed:
		decision = logging.DecisionCommit
		result.Parameters = applied.NewState
		result.Saved = true
		result.VersionID = newVersion
	}

	o.sessions.Append(id,
		session.Message{Role: session.RoleUser, Content: message},
		session.Message{Role: session.RoleAssistant, Content: ext.Visible},
	)
	o.record(ctx, log, result, ext.Proposal, applied.Changes, decision, applied.Decision.Reason)

	log.Info("turn complete",
		zap.String("decision", decision),
		zap.Int("changes", len(applied.Applied())),
		zap.Bool("malformed", ext.Malformed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if saveErr != nil {
		return result, saveErr
	}
	return result, nil
}

// #endregion turn

// #region helpers

func (o *Orchestrator) load(ctx context.Context, id string) (params.Set, string) {
	if vs, ok := o.store.(state.VersionedStore); ok {
		return vs.LoadVersion(ctx, id)
	}
	return o.store.Load(ctx, id), ""
}

func (o *Orchestrator) complete(ctx context.Context, sess session.Session, message string) (codec.Response, error) {
	msgs := make([]codec.Message, 0, len(sess.History)+2)
	if len(sess.History) == 0 && o.config.Greeting != "" {
		msgs = append(msgs, codec.Message{Role: codec.RoleAssistant, Content: o.config.Greeting})
	}
	for _, m := range sess.History {
		msgs = append(msgs, codec.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, codec.Message{Role: codec.RoleUser, Content: message})

	cctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	resp, err := o.client.Complete(cctx, codec.Request{
		System:      o.system,
		Messages:    msgs,
		Temperature: o.config.Temperature,
		MaxTokens:   o.config.MaxTokens,
	})
	if err != nil {
		return codec.Response{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return codec.Response{}, ErrEmptyCompletion
	}
	return resp, nil
}

// commit applies the proposal and persists on change. A turn without scores
// never reaches the policy. Versioned stores get a compare-and-swap; a
// conflict is reported as a save failure and not retried.
func (o *Orchestrator) commit(ctx context.Context, id string, current params.Set, version string, proposal signals.Proposal, message string) (update.UpdateResult, string, error) {
	if len(proposal) == 0 {
		return update.UpdateResult{
			NewState: current,
			Decision: update.Decision{Action: "no_op", Reason: "no scores proposed"},
		}, version, nil
	}

	result := o.policy.Apply(current, proposal, message)
	if !result.Changed {
		return result, version, nil
	}

	vs, ok := o.store.(state.VersionedStore)
	if !ok {
		return result, "", o.store.Save(ctx, id, result.NewState)
	}

	newVersion, err := vs.CompareAndSwap(ctx, id, version, result.NewState)
	if err != nil && !errors.Is(err, state.ErrSaveFailed) {
		err = fmt.Errorf("%w: %w", state.ErrSaveFailed, err)
	}
	return result, newVersion, err
}

func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, result TurnResult, proposal signals.Proposal, changes []update.Change, decision, reason string) {
	entry := logging.TurnEntry{
		TurnID:    result.TurnID,
		UserID:    result.UserID,
		VersionID: result.VersionID,
		Decision:  decision,
		Reason:    reason,
		Malformed: result.Malformed,
	}
	if len(proposal) > 0 {
		if b, err := json.Marshal(proposal); err == nil {
			entry.ProposalJSON = string(b)
		}
	}
	if len(changes) > 0 {
		if b, err := json.Marshal(changes); err == nil {
			entry.ChangesJSON = string(b)
		}
	}
	if err := o.recorder.Record(ctx, entry); err != nil {
		log.Warn("record turn", zap.Error(err))
	}
}

// #endregion helpers
