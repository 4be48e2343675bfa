// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/api"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/model"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/stage"
)

// Fixed user-facing strings for degenerate turn outcomes.
const (
	// FallbackResponse replaces an answer that completed with no text at
	// all. A finalized assistant message is never empty.
	FallbackResponse = "I couldn't come up with a response for that. Please try rephrasing your question."

	// apologyResponse is the synthetic assistant message appended when a
	// turn fails for any reason other than cancellation.
	apologyResponse = "Sorry, something went wrong while answering. Please try again."

	// DefaultChartTimeout bounds the fire-and-forget chart follow-up.
	DefaultChartTimeout = 45 * time.Second
)

// ErrTurnInFlight is returned by Send while a previous turn is still
// streaming. Callers cancel first or wait for the terminal notification.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives one conversational turn at a time: the streaming
// request, session/tracker mutation per event, and the chart follow-up.
//
// Stream events are applied sequentially on the Send goroutine. The chart
// follow-up runs on its own goroutine with its own context; stateMu covers
// the window where its late effects land on the session.
type Orchestrator struct {
	client   *api.Client
	session  *model.Session
	tracker  *stage.Tracker
	observer Observer

	chartTimeout time.Duration

	// stateMu guards session mutations against late chart effects.
	stateMu sync.Mutex

	// cancelMu guards the abort handle for the in-flight primary request.
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// chartWG tracks outstanding chart follow-ups, for orderly shutdown.
	chartWG sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over the given client, session,
// and tracker.
func NewOrchestrator(client *api.Client, session *model.Session, tracker *stage.Tracker) *Orchestrator {
	return &Orchestrator{
		client:       client,
		session:      session,
		tracker:      tracker,
		chartTimeout: DefaultChartTimeout,
	}
}

// WithObserver sets the notification observer.
func (o *Orchestrator) WithObserver(fn Observer) *Orchestrator {
	o.observer = fn
	return o
}

// WithChartTimeout overrides the chart follow-up timeout.
func (o *Orchestrator) WithChartTimeout(d time.Duration) *Orchestrator {
	o.chartTimeout = d
	return o
}

// Session returns the session the orchestrator mutates.
func (o *Orchestrator) Session() *model.Session {
	return o.session
}

// Tracker returns the stage tracker.
func (o *Orchestrator) Tracker() *stage.Tracker {
	return o.tracker
}

func (o *Orchestrator) publish(n Notification) {
	if o.observer != nil {
		o.observer(n)
	}
}

func (o *Orchestrator) publishStages() {
	o.publish(StagesChanged{Stages: o.tracker.Snapshot()})
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one full turn: appends the user message and a pending
// assistant message, streams the answer into it, and on success fires the
// chart follow-up. It returns once the primary stream is fully consumed
// or failed; the chart follow-up outlives it by design.
//
// Cancellation via Cancel stops state mutation and is not an error.
// Any other failure replaces the pending answer with a synthetic apology,
// resets the tracker, and returns the underlying error.
func (o *Orchestrator) Send(ctx context.Context, prompt string, attachments []api.Attachment) error {
	turnCtx, err := o.acquireTurn(ctx)
	if err != nil {
		return err
	}

	o.stateMu.Lock()
	userMsg := o.session.AddUserMessage(prompt)
	assistant := o.session.AddAssistantMessage()
	conversationID := o.session.ConversationID
	o.stateMu.Unlock()

	o.publish(MessageUpdated{Message: userMsg})
	o.publish(MessageUpdated{Message: assistant})

	o.tracker.Activate(stage.PhaseSearching)
	o.publishStages()

	req := api.ChatRequest{
		Prompt:         prompt,
		ConversationID: conversationID,
		Attachments:    attachments,
	}

	streamErr := o.client.StreamChat(turnCtx, req, func(ev api.Event) error {
		return o.applyEvent(assistant, ev)
	})

	// The abort handle is released on every terminal path.
	o.releaseTurn()

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			o.finishCancelled(assistant)
			return nil
		}
		o.finishFailed(assistant, streamErr)
		return streamErr
	}

	o.finishCompleted(assistant)
	o.startChartFollowUp(prompt, assistant.ID)
	return nil
}

// applyEvent mutates session state for one stream event.
func (o *Orchestrator) applyEvent(assistant *model.Message, ev api.Event) error {
	switch e := ev.(type) {
	case api.ConversationAssigned:
		o.stateMu.Lock()
		changed := o.session.ConversationID != e.ID
		if changed {
			o.session.ConversationID = e.ID
		}
		o.stateMu.Unlock()
		// Redundant announcements are swallowed so downstream
		// reconciliation is not re-triggered.
		if changed {
			o.publish(ConversationAssigned{ID: e.ID})
		}

	case api.TextDelta:
		// First visible text moves the turn from searching to responding.
		if o.tracker.State(stage.PhaseResponding) != stage.StateActive {
			o.tracker.Activate(stage.PhaseResponding)
			o.publishStages()
		}
		o.stateMu.Lock()
		assistant.AppendText(e.Text)
		o.stateMu.Unlock()
		o.publish(MessageUpdated{Message: assistant})

	case api.SourceUpdate:
		o.stateMu.Lock()
		assistant.SetSources(e.Sources)
		o.stateMu.Unlock()
		o.publish(SourcesUpdated{Message: assistant})

	case api.Errored:
		return fmt.Errorf("backend reported: %s", e.Message)

	case api.Completed:
		// Finalization happens after the stream returns.
	}
	return nil
}

// =============================================================================
// TERMINAL PATHS
// =============================================================================

func (o *Orchestrator) finishCompleted(assistant *model.Message) {
	o.stateMu.Lock()
	assistant.FinalizeStream()
	if assistant.IsEmpty() {
		assistant.SetContent(FallbackResponse)
	}
	o.stateMu.Unlock()

	o.tracker.Complete(stage.PhaseSearching)
	o.tracker.Complete(stage.PhaseResponding)
	o.publish(MessageUpdated{Message: assistant})
	o.publishStages()
	o.publish(TurnCompleted{Message: assistant})
}

// finishCancelled ends the turn without surfacing an error. The message
// log keeps whatever had arrived at the moment of cancellation.
func (o *Orchestrator) finishCancelled(assistant *model.Message) {
	o.stateMu.Lock()
	assistant.FinalizeStream()
	o.stateMu.Unlock()

	o.tracker.Reset()
	o.publish(MessageUpdated{Message: assistant})
	o.publishStages()
}

func (o *Orchestrator) finishFailed(assistant *model.Message, err error) {
	o.stateMu.Lock()
	assistant.SetContent(apologyResponse)
	o.stateMu.Unlock()

	o.tracker.Reset()
	o.publish(MessageUpdated{Message: assistant})
	o.publishStages()
	o.publish(TurnFailed{Err: err, Message: assistant})
}

// =============================================================================
// CHART FOLLOW-UP
// =============================================================================

// startChartFollowUp issues the chart request for a committed answer. It is
// always attempted when a conversation identifier is known, and it fails
// silently: chart unavailability never fails the turn.
//
// The follow-up deliberately runs outside the turn's cancellation scope;
// once the answer is committed the chart call proceeds regardless of later
// UI navigation. Its effects target the message by ID and are dropped if
// the session has since moved on.
func (o *Orchestrator) startChartFollowUp(prompt, messageID string) {
	o.stateMu.Lock()
	conversationID := o.session.ConversationID
	o.stateMu.Unlock()
	if conversationID == "" {
		return
	}

	o.tracker.Activate(stage.PhaseCharting)
	o.publishStages()

	o.chartWG.Add(1)
	go func() {
		defer o.chartWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.chartTimeout)
		defer cancel()

		url, err := o.client.GenerateChart(ctx, prompt, conversationID)

		o.stateMu.Lock()
		target := o.session.MessageByID(messageID)
		o.stateMu.Unlock()
		if target == nil {
			// Session moved on; the result has nowhere to land.
			return
		}

		if err != nil {
			log.Printf("luna chart: follow-up failed for %s: %v", conversationID, err)
			o.tracker.Revert(stage.PhaseCharting)
			o.publishStages()
			return
		}

		o.stateMu.Lock()
		target.AddChart(url)
		o.stateMu.Unlock()

		o.tracker.Complete(stage.PhaseCharting)
		o.publish(MessageUpdated{Message: target})
		o.publishStages()
	}()
}

// WaitCharts blocks until outstanding chart follow-ups have finished.
func (o *Orchestrator) WaitCharts() {
	o.chartWG.Wait()
}

// =============================================================================
// CANCELLATION AND RESET
// =============================================================================

// acquireTurn installs a fresh abort handle, refusing when one exists.
func (o *Orchestrator) acquireTurn(ctx context.Context) (context.Context, error) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancel != nil {
		return nil, ErrTurnInFlight
	}
	turnCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	return turnCtx, nil
}

func (o *Orchestrator) releaseTurn() {
	o.cancelMu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.cancelMu.Unlock()
}

// Cancel aborts the in-flight primary request. Idempotent: cancelling
// twice, or after natural completion, is a no-op. The chart follow-up is
// deliberately not covered.
func (o *Orchestrator) Cancel() {
	o.releaseTurn()
}

// StartNewChat cancels any in-flight turn and clears the session and
// tracker back to a fresh empty chat.
func (o *Orchestrator) StartNewChat() {
	o.Cancel()

	o.stateMu.Lock()
	o.session.Reset()
	o.stateMu.Unlock()

	o.tracker.Reset()
	o.publishStages()
}
