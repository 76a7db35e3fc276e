package service

import (
	"errors"
	"strconv"

	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
)

// providerFailure maps a provider client error onto the domain taxonomy. Non-retryable 4xx
// answers become ErrProviderRejected carrying the provider's code; everything else is transient.
func providerFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	var pe *graph.ProviderError
	if errors.As(err, &pe) && !pe.Temporary() {
		return appErrors.WithDetails(appErrors.WrapAs(appErrors.ErrProviderRejected, err, message), map[string]string{
			"provider_status":  strconv.Itoa(pe.StatusCode),
			"provider_code":    pe.Code,
			"provider_message": pe.Message,
		})
	}
	return appErrors.WrapAs(appErrors.ErrTransientNetwork, err, message)
}

func persistenceFailure(err error, message string) error {
	return appErrors.WrapAs(appErrors.ErrPersistence, err, message)
}
