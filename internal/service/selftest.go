package service

import (
	"context"

	"leadrelay/internal/constants"
	"leadrelay/internal/models"
)

// SelfTestFields is the canned diagnostic submission
func SelfTestFields() models.FieldSet {
	return models.NewFieldSet(
		models.Field{Name: "name", Value: constants.SelfTestName},
		models.Field{Name: "phone", Value: constants.SelfTestPhone},
		models.Field{Name: "email", Value: constants.SelfTestEmail},
		models.Field{Name: "message", Value: constants.SelfTestMessage},
	)
}

func runSelfTest(ctx context.Context, d Dispatcher) (*models.SelfTestReport, error) {
	env := models.ClientContext{
		PageURL:   "leadrelay://selftest",
		UserAgent: "leadrelay-selftest",
	}

	result, err := d.Dispatch(ctx, SelfTestFields(), constants.SelfTestFormType, env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &models.SelfTestReport{OK: false, Error: err.Error()}, nil
	}

	return &models.SelfTestReport{
		OK:        true,
		Via:       result.Result.Via,
		MessageID: result.Result.MessageID,
		Warning:   result.Warning,
	}, nil
}
