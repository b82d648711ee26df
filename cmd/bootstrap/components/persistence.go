package components

import (
	"seatbridge/internal/infra/db"
	"seatbridge/internal/infra/extern"
	"seatbridge/internal/infra/queue"
	"seatbridge/internal/infra/readstore"
	"seatbridge/internal/infra/uow"
	"seatbridge/internal/pkg/config"
	"seatbridge/internal/usecase/commands"
	"seatbridge/internal/usecase/queries"
	"seatbridge/internal/usecase/shared"
	"seatbridge/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		NewDBTX,
		// UnitOfWork
		uow.NewPostgresUoW,
		// Read side
		fx.Annotate(
			readstore.NewBookingReadStore,
			fx.As(new(queries.BookingReadStore)),
		),
		fx.Annotate(
			readstore.NewMemberReadStore,
			fx.As(new(commands.MemberDirectory)),
		),
		// External seat-allocation authority
		NewReservationAuthority,
		// Reconciliation wake signal
		fx.Annotate(
			queue.NewRedisWaker,
			fx.As(new(shared.ReconcileWaker)),
			fx.As(new(worker.Waiter)),
		),
	),
)

func NewDBTX(pool *pgxpool.Pool) db.DBTX {
	return pool
}

func NewReservationAuthority(cfg config.Config) shared.ReservationAuthority {
	return extern.NewClient(cfg.Authority)
}
