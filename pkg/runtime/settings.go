package runtime

import (
	"fmt"
	"os"
	"strconv"
)

const defaultListenAddress = "0.0.0.0:8050"

type runtimeSettings struct {
	listenAddress    string
	advertiseAddress string
	gatewayAddress   string
	functionName     string
	timeoutSeconds   int
}

func loadRuntimeSettings() runtimeSettings {
	listenAddress, ok := os.LookupEnv("FUNCTION_ADDRESS")
	if !ok {
		listenAddress = defaultListenAddress
	}

	gatewayAddress, ok := os.LookupEnv("GATEWAY_ADDRESS")
	if !ok {
		fmt.Printf("Environment variable GATEWAY_ADDRESS not found")
	}

	functionName, ok := os.LookupEnv("FUNCTION_NAME")
	if !ok {
		fmt.Printf("Environment variable FUNCTION_NAME not found")
	}

	// Inside a container the listen address is what other containers dial.
	advertiseAddress, ok := os.LookupEnv("FUNCTION_ADVERTISE_ADDRESS")
	if !ok {
		advertiseAddress = listenAddress
	}

	// The per-function idle timeout configured at registration. Zero means
	// the function binary's own default applies.
	timeoutSeconds := 0
	if raw, ok := os.LookupEnv("FUNCTION_TIMEOUT"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			fmt.Printf("Ignoring invalid FUNCTION_TIMEOUT %q", raw)
		} else {
			timeoutSeconds = parsed
		}
	}

	return runtimeSettings{
		listenAddress:    listenAddress,
		advertiseAddress: advertiseAddress,
		gatewayAddress:   gatewayAddress,
		functionName:     functionName,
		timeoutSeconds:   timeoutSeconds,
	}
}

func getID() string {
	hostname, err := os.Hostname()
	if err != nil {
		panic(fmt.Sprintf("Failed to get hostname: %v", err))
	}
	return hostname
}
