package assistant

import (
	"context"
	"time"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/hub"
	"github.com/teslashibe/go-assistant/pkg/session"
	"github.com/teslashibe/go-assistant/pkg/trigger"
	"github.com/teslashibe/go-assistant/pkg/web"
)

// triggerEvent is published for every button press or API trigger.
type triggerEvent struct {
	Source   string `json:"source"`
	Accepted bool   `json:"accepted"`
}

// eventObserver forwards session transitions to websocket clients.
type eventObserver struct {
	app *App
}

func (o eventObserver) OnStart(s session.Session) {
	o.app.publish(hub.EventSessionStarted, s)
}

func (o eventObserver) OnFinish(s session.Session) {
	o.app.publish(hub.EventSessionFinished, s)
}

func (a *App) publish(eventType string, data any) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(eventType, data); err != nil {
		a.logger.Warn("event not published", "type", eventType, "error", err)
	}
}

// Status implements web.Backend.
func (a *App) Status() web.Status {
	s := a.currentSettings()
	st := web.Status{
		Enabled:        a.disabled == "",
		DisabledReason: a.disabled,
		SpeakerName:    s.Bluetooth.SpeakerName,
		Model:          s.OpenAI.Model,
		StartedAt:      a.startedAt,
		Uptime:         time.Since(a.startedAt).Round(time.Second).String(),
	}
	if s.OpenAI.APIKey != "" {
		st.APIKey = config.MaskKey(s.OpenAI.APIKey)
	}
	if a.supervisor != nil {
		st.Speaker = a.supervisor.Health()
	}
	if a.checker != nil {
		st.Health = a.checker.Last()
	}
	if a.runner != nil {
		st.Busy = a.runner.Busy()
	}
	if a.history != nil {
		if cur, ok := a.history.Current(); ok {
			st.Current = &cur
		}
		if last, ok := a.history.Last(); ok {
			st.LastSession = &last
		}
	}
	return st
}

// Sessions implements web.Backend.
func (a *App) Sessions() []session.Session {
	if a.history == nil {
		return []session.Session{}
	}
	return a.history.List()
}

// Trigger implements web.Backend. It is refused while disabled or while a
// session is running.
func (a *App) Trigger(source string) bool {
	if a.runner == nil || a.runner.Busy() {
		a.publish(hub.EventTrigger, triggerEvent{Source: source})
		return false
	}
	ok := a.bus.Publish(trigger.Signal{Source: source, At: time.Now()})
	a.metrics.Press(ok)
	a.publish(hub.EventTrigger, triggerEvent{Source: source, Accepted: ok})
	return ok
}

// Speak implements web.Backend.
func (a *App) Speak(ctx context.Context, text string, route audio.Route) bool {
	return a.pipeline.SynthesizeAndPlay(ctx, text, route)
}

// Verify App implements web.Backend at compile time.
var _ web.Backend = (*App)(nil)
