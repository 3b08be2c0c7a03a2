package monopay

import "github.com/mstgnz/monopay/provider"

// Register the Monobank gateway with the gateway registry
func init() {
	provider.Register("monopay", func(cfg provider.GatewayConfig) (provider.Gateway, error) {
		gw, err := NewGateway(cfg)
		if err != nil {
			return nil, err
		}
		return gw, nil
	})
}
