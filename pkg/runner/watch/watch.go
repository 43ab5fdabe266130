// Package watch keeps the widgets live: task requests from the inbox are
// applied, the timer is polled and store changes from other processes are
// reported.
package watch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/store"
)

type Watch struct {
	Service *app.Service
	// Subscriber defaults to the service inbox.
	Subscriber channel.Subscriber
	Log        *slog.Logger
}

func (w *Watch) Do(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	sub := w.Subscriber
	if sub == nil {
		inbox, err := w.Service.Inbox()
		if err != nil {
			return err
		}
		log.Info("watching inbox", "dir", inbox.Dir())
		sub = inbox
	}

	events, err := w.Service.Store.Watch(ctx)
	if err != nil {
		log.Warn("store changes from other processes will not be seen", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Service.Serve(ctx, sub) })
	if events != nil {
		g.Go(func() error {
			for ev := range events {
				switch ev.Type {
				case store.EventKeyChanged:
					log.Debug("store changed", "key", ev.Key)
					w.Service.Reload(ev.Key)
				case store.EventInvalidated:
					w.Service.Reload("")
				}
			}
			return nil
		})
	}
	return g.Wait()
}
