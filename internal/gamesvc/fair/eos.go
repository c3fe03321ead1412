package fair

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultChainInfoURL = "https://eos.genereos.io/v1/chain/get_info"

// EOSClient reads the public chain head used to commit server seeds for
// multiplayer games after all slots fill.
type EOSClient interface {
	// GetLatestBlock returns the current head block height and id. It keeps
	// retrying until it succeeds or ctx is done.
	GetLatestBlock(ctx context.Context) (int64, string, error)
	// HasBlockPassed reports whether the chain head has moved past block.
	HasBlockPassed(ctx context.Context, block int64) (bool, error)
}

type ChainClient struct {
	url    string
	client *http.Client
	// retryWait spaces out retries so a chain outage does not hot-loop.
	retryWait time.Duration
}

func NewChainClient() *ChainClient {
	url := os.Getenv("EOS_CHAIN_URL")
	if url == "" {
		url = defaultChainInfoURL
	}
	return &ChainClient{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		retryWait: 250 * time.Millisecond,
	}
}

func (c *ChainClient) GetLatestBlock(ctx context.Context) (int64, string, error) {
	for {
		height, id, err := c.fetchHead(ctx)
		if err == nil {
			return height, id, nil
		}
		log.Warnf("eos chain fetch failed, retrying: %v", err)
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case <-time.After(c.retryWait):
		}
	}
}

func (c *ChainClient) fetchHead(ctx context.Context) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, "", err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()

	var info struct {
		HeadBlockNum int64  `json:"head_block_num"`
		HeadBlockID  string `json:"head_block_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return 0, "", err
	}
	if info.HeadBlockNum == 0 || info.HeadBlockID == "" {
		return 0, "", errEmptyChainInfo
	}
	return info.HeadBlockNum, info.HeadBlockID, nil
}

func (c *ChainClient) HasBlockPassed(ctx context.Context, block int64) (bool, error) {
	latest, _, err := c.GetLatestBlock(ctx)
	if err != nil {
		return false, err
	}
	return latest > block, nil
}

var errEmptyChainInfo = errors.New("chain info response missing head block")
