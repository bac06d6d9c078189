package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/gjson"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// Environment variables read by flowrunner.
const (
	EnvInstrumentationKey = "appInsightsInstrumentationKey"
	EnvBlobConnection     = "blobStorageConnectionString"
	EnvBlobContainer      = "blobStorageContainerName"
	EnvCorrelationID      = "correlationId"
	EnvPushGateway        = "FLOWRUNNER_PUSHGATEWAY"
	EnvMQTTBroker         = "FLOWRUNNER_MQTT_BROKER"
	EnvOTPURL             = "OTP_FUNCTION_APP"
	EnvOTPKey             = "OTP_FUNCTION_APP_KEY"
)

// Keys holds secrets from keys.json.
type Keys struct {
	OTPFunctionApp    string
	OTPFunctionAppKey string
}

// LoadKeys reads the keys file at path, then applies environment overrides.
// A missing file is not an error; flows that need a key fail when they use it.
func LoadKeys(path string) (*Keys, error) {
	var k Keys
	data, err := os.ReadFile(path) //#nosec G304 -- keys file under the flowrunner home
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("cannot read keys file %s", path)).WithCause(err)
	default:
		if !gjson.ValidBytes(data) {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid keys file %s: not valid JSON", path))
		}
		root := gjson.ParseBytes(data)
		k.OTPFunctionApp = root.Get("otpFunctionApp").String()
		k.OTPFunctionAppKey = root.Get("otpFunctionAppKey").String()
	}

	if v := os.Getenv(EnvOTPURL); v != "" {
		k.OTPFunctionApp = v
	}
	if v := os.Getenv(EnvOTPKey); v != "" {
		k.OTPFunctionAppKey = v
	}
	return &k, nil
}
