package components

import (
	"context"

	"seatbridge/internal/pkg/config"
	"seatbridge/internal/worker"

	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		NewReconcilerConfig,
		worker.NewReconciler,
	),
	fx.Invoke(StartReconciler),
)

func NewReconcilerConfig(cfg config.Config) config.ReconcilerConfig {
	return cfg.Reconciler
}

// StartReconciler runs the sweep loop for the whole process lifetime.
// The loop owns no listeners, so stopping it is just cancelling its
// context and waiting for the current sweep to finish.
func StartReconciler(lc fx.Lifecycle, rec *worker.Reconciler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				rec.Start(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
