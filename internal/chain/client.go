// -----------------------------------------------------------------------
// Lazy-initialized Ethereum client bundle for the job registry chain
// -----------------------------------------------------------------------

package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
)

// Service owns the Ethereum clients. Clients are created lazily because
// the operator may supply connection settings after startup, via the
// config save endpoint. All accessors fail with ErrNotInitialized until
// a complete configuration has been applied.
type Service struct {
	client        *ethclient.Client
	auth          *bind.TransactOpts
	workerAddress ethcommon.Address
	contractAddr  ethcommon.Address
	registry      interfaces.RegistryClient
	initialized   bool
	mu            sync.RWMutex
	logger        arbor.ILogger
}

// NewService creates an uninitialized chain service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Initialize dials the RPC endpoint and builds the keyed transactor from
// the worker private key. A partial configuration is not an error; the
// service just stays uninitialized and polling is skipped.
func (s *Service) Initialize(cfg *common.ChainConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Configured() {
		s.logger.Info().Msg("Chain settings incomplete, clients not initialized")
		return nil
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	keyHex := strings.TrimPrefix(cfg.WorkerKey, "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		client.Close()
		return fmt.Errorf("invalid worker private key: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create transactor: %w", err)
	}

	s.client = client
	s.auth = auth
	s.workerAddress = crypto.PubkeyToAddress(privateKey.PublicKey)
	s.contractAddr = ethcommon.HexToAddress(cfg.ContractAddress)
	s.registry = newJobRegistry(client, s.contractAddr, auth, s.logger)
	s.initialized = true

	s.logger.Info().
		Int64("chain_id", cfg.ChainID).
		Str("contract", s.contractAddr.Hex()).
		Str("worker", s.workerAddress.Hex()).
		Msg("Chain clients initialized")

	return nil
}

// Reinitialize tears the clients down and rebuilds them from the given
// settings. Called when the operator saves new configuration.
func (s *Service) Reinitialize(cfg *common.ChainConfig) error {
	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
	}
	s.client = nil
	s.auth = nil
	s.registry = nil
	s.initialized = false
	s.mu.Unlock()

	return s.Initialize(cfg)
}

// IsInitialized reports whether the clients are ready for use.
func (s *Service) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Registry returns the job registry client.
func (s *Service) Registry() (interfaces.RegistryClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, interfaces.ErrNotInitialized
	}
	return s.registry, nil
}

// WorkerAddress returns the address derived from the worker key.
func (s *Service) WorkerAddress() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return "", interfaces.ErrNotInitialized
	}
	return s.workerAddress.Hex(), nil
}

// Close releases the RPC connection.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.initialized = false
	return nil
}
