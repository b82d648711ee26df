package components

import (
	"seatbridge/internal/pkg/clock"
	"seatbridge/internal/usecase/commands"
	"seatbridge/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	fx.Provide(
		clock.NewRealClock,
		commands.NewBookingCommands,
		queries.NewBookingQueries,
	),
)
