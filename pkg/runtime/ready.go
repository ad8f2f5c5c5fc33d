package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/upperfaas/upperfaas/pkg/utils"
)

// ReadySignal is what an instance posts to the gateway once it is serving.
type ReadySignal struct {
	Function   string `json:"function"`
	InstanceId string `json:"instance_id"`
	Address    string `json:"address"`
}

func (f *Function) sendReadySignal() {
	signal := ReadySignal{
		Function:   f.functionName,
		InstanceId: f.instanceId,
		Address:    f.advertiseAddress,
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		f.logger.Error("Failed to encode ready signal", "error", err)
		return
	}

	url := fmt.Sprintf("http://%s/registry/ready", f.gatewayAddress)
	client := &http.Client{Timeout: 10 * time.Second}

	// The gateway may still be coming up when the instance starts.
	_, err = utils.CallWithRetry(context.Background(), func() (struct{}, error) {
		resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return struct{}{}, fmt.Errorf("gateway rejected ready signal with status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}, 5, time.Second)

	if err != nil {
		f.logger.Error("Failed to send ready signal", "gateway", f.gatewayAddress, "error", err)
		return
	}
	f.logger.Info("Ready signal sent", "gateway", f.gatewayAddress)
}
