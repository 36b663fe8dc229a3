package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Callhub/internal/app"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

func (o *Orchestrator) pushIncoming(ctx context.Context, caller, receiver domain.UserID, media domain.MediaType, callerName string) error {
	profiles, err := o.Directory.LookupUsers(ctx, []domain.UserID{caller, receiver})
	if err != nil {
		return fmt.Errorf("lookup users: %w", err)
	}
	from, to := pick(profiles, caller), pick(profiles, receiver)
	if to == nil || len(to.DeviceTokens) == 0 {
		return nil
	}
	o.pushAll(ctx, receiver, to.DeviceTokens, domain.PushPayload{
		Title: displayName(callerName, from, caller),
		Body:  fmt.Sprintf("Incoming %s call", media),
		Data: map[string]string{
			"type":     "call_incoming",
			"callerId": string(caller),
			"callType": string(media),
		},
	})
	return nil
}

func (o *Orchestrator) pushEnded(ctx context.Context, ended app.Ended, endedBy domain.UserID, status domain.RecordStatus) error {
	peer := ended.Peer(endedBy)
	profiles, err := o.Directory.LookupUsers(ctx, []domain.UserID{endedBy, peer})
	if err != nil {
		return fmt.Errorf("lookup users: %w", err)
	}
	from, to := pick(profiles, endedBy), pick(profiles, peer)
	if to == nil || len(to.DeviceTokens) == 0 {
		return nil
	}
	body := "Call ended"
	if status == domain.RecordCanceled && peer == ended.Receiver {
		body = fmt.Sprintf("Missed %s call", ended.Media)
	}
	o.pushAll(ctx, peer, to.DeviceTokens, domain.PushPayload{
		Title: displayName("", from, endedBy),
		Body:  body,
		Data: map[string]string{
			"type":   "call_ended",
			"peerId": string(endedBy),
			"status": string(status),
		},
	})
	return nil
}

// pushAll delivers to every token independently and waits for all of them.
// Dead tokens are invalidated in separate tasks.
func (o *Orchestrator) pushAll(ctx context.Context, user domain.UserID, tokens []string, payload domain.PushPayload) []domain.PushResult {
	p := pool.NewWithResults[domain.PushResult]().WithMaxGoroutines(o.pushConcurrency)
	for _, tok := range tokens {
		tok := tok
		p.Go(func() domain.PushResult {
			return o.Pusher.SendPush(ctx, tok, payload)
		})
	}
	results := p.Wait()

	for _, r := range results {
		switch {
		case r.Success:
			o.Metrics.Push("ok")
		case r.ShouldRemoveToken:
			o.Metrics.Push("removed")
			tok := r.Token
			o.Tasks.Submit("invalidate_token", func(ctx context.Context) error {
				return o.Tokens.RemoveDeviceToken(ctx, user, tok)
			})
		default:
			o.Metrics.Push("failed")
			log.Warn().Err(r.Err).Str("module", "orch").Str("user", string(user)).Msg("push failed")
		}
	}
	return results
}

func pick(profiles []domain.UserProfile, id domain.UserID) *domain.UserProfile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}

func displayName(given string, p *domain.UserProfile, id domain.UserID) string {
	if given != "" {
		return given
	}
	if p != nil && p.Name != "" {
		return p.Name
	}
	return string(id)
}
