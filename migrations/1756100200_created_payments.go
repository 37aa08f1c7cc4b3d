package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"court-booking/models"
)

func init() {
	m.Register(func(app core.App) error {
		intents := core.NewBaseCollection("payment_intents")
		intents.Fields.Add(
			&core.TextField{Name: "owner"},
			&core.NumberField{Name: "amount", Required: true},
			&core.TextField{Name: "currency", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					models.IntentPending,
					models.IntentSucceeded,
					models.IntentCancelled,
					models.IntentExpired,
				},
			},
			&core.TextField{Name: "reference_type", Required: true},
			&core.TextField{Name: "reference_id", Required: true},
			&core.DateField{Name: "expires_at"},
			&core.DateField{Name: "paid_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		intents.AddIndex("idx_payment_intents_reference", false, "reference_type, reference_id, created", "")
		// at most one open intent per reference; terminal rows pile up freely
		intents.AddIndex("idx_payment_intents_open_reference", true, "reference_type, reference_id", "status = 'pending'")
		intents.AddIndex("idx_payment_intents_status_expiry", false, "status, expires_at", "")
		if err := app.Save(intents); err != nil {
			return err
		}

		transactions := core.NewBaseCollection("payment_transactions")
		transactions.Fields.Add(
			&core.RelationField{Name: "intent", Required: true, MaxSelect: 1, CollectionId: intents.Id},
			&core.TextField{Name: "provider"},
			&core.TextField{Name: "provider_ref"},
			&core.TextField{Name: "provider_event_id"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{models.TxInitiated, models.TxSuccess, models.TxFailed},
			},
			&core.NumberField{Name: "amount"},
			&core.TextField{Name: "raw_response"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		// duplicate provider deliveries settle nothing
		transactions.AddIndex("idx_payment_transactions_event", true, "provider_event_id", "provider_event_id != ''")
		transactions.AddIndex("idx_payment_transactions_intent", false, "intent", "")
		if err := app.Save(transactions); err != nil {
			return err
		}

		events := core.NewBaseCollection("payment_events")
		events.Fields.Add(
			&core.RelationField{Name: "intent", Required: true, MaxSelect: 1, CollectionId: intents.Id},
			&core.TextField{Name: "type", Required: true},
			&core.TextField{Name: "payload"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		events.AddIndex("idx_payment_events_intent", false, "intent, created", "")
		return app.Save(events)
	}, func(app core.App) error {
		for _, name := range []string{"payment_events", "payment_transactions", "payment_intents"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
