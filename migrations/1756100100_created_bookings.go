package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"court-booking/models"
)

func init() {
	m.Register(func(app core.App) error {
		courts, err := app.FindCollectionByNameOrId("courts")
		if err != nil {
			return err
		}

		bookings := core.NewBaseCollection("bookings")
		bookings.Fields.Add(
			&core.RelationField{Name: "court", Required: true, MaxSelect: 1, CollectionId: courts.Id},
			&core.DateField{Name: "start_at", Required: true},
			&core.DateField{Name: "end_at", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{models.BookingHold, models.BookingConfirmed, models.BookingCancelled},
			},
			// set while status is hold, cleared on confirm/cancel
			&core.DateField{Name: "expires_at"},
			&core.NumberField{Name: "price"},
			&core.TextField{Name: "currency"},
			&core.TextField{Name: "owner"},
			&core.TextField{Name: "customer_name"},
			&core.TextField{Name: "customer_phone"},
			&core.TextField{Name: "checkout_hash", Hidden: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		// overlap scans are always per court over a window
		bookings.AddIndex("idx_bookings_court_window", false, "court, start_at, end_at", "")
		// expiry sweep scan
		bookings.AddIndex("idx_bookings_status_expiry", false, "status, expires_at", "")
		return app.Save(bookings)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
