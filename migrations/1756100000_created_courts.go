package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"court-booking/models"
)

func init() {
	m.Register(func(app core.App) error {
		courts := core.NewBaseCollection("courts")
		courts.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "club"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{models.CourtActive, models.CourtMaintenance, models.CourtRetired},
			},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		courts.AddIndex("idx_courts_status", false, "status", "")
		if err := app.Save(courts); err != nil {
			return err
		}

		blocks := core.NewBaseCollection("court_blocks")
		blocks.Fields.Add(
			&core.RelationField{Name: "court", Required: true, MaxSelect: 1, CollectionId: courts.Id},
			&core.DateField{Name: "start_at", Required: true},
			&core.DateField{Name: "end_at", Required: true},
			&core.BoolField{Name: "blocking"},
			&core.TextField{Name: "reason"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		blocks.AddIndex("idx_court_blocks_window", false, "court, start_at, end_at", "")
		return app.Save(blocks)
	}, func(app core.App) error {
		for _, name := range []string{"court_blocks", "courts"} {
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
