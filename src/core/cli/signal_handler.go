package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalHandler runs registered shutdown callbacks on SIGINT/SIGTERM and
// reloads the CLI configuration on SIGHUP. No meshctl command calls
// GetGlobalSignalHandler.
type SignalHandler struct {
	shutdownCallbacks []func() error
	mutex             sync.RWMutex
	logger            *log.Logger
	shutdownTimeout   time.Duration
	shutdownChan      chan struct{}
	shutdownOnce      sync.Once
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler() *SignalHandler {
	return &SignalHandler{
		shutdownCallbacks: make([]func() error, 0),
		logger:            log.New(os.Stdout, "[SignalHandler] ", log.LstdFlags),
		shutdownTimeout:   30 * time.Second,
		shutdownChan:      make(chan struct{}),
	}
}

// RegisterShutdownCallback adds a callback to be executed during shutdown
func (sh *SignalHandler) RegisterShutdownCallback(callback func() error) {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	sh.shutdownCallbacks = append(sh.shutdownCallbacks, callback)
}

// SetShutdownTimeout sets the timeout for shutdown operations
func (sh *SignalHandler) SetShutdownTimeout(timeout time.Duration) {
	sh.shutdownTimeout = timeout
}

// StartSignalHandling starts listening for system signals
func (sh *SignalHandler) StartSignalHandling() {
	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)

	go sh.handleSignals(signalChan)
	sh.logger.Println("Started signal handling")
}

// handleSignals processes incoming signals
func (sh *SignalHandler) handleSignals(signalChan chan os.Signal) {
	for sig := range signalChan {
		sh.logger.Printf("Received signal: %v", sig)

		switch sig {
		case os.Interrupt, syscall.SIGTERM:
			sh.logger.Println("Initiating graceful shutdown...")
			sh.gracefulShutdown()
			return
		case syscall.SIGHUP:
			sh.logger.Println("Received SIGHUP, reloading configuration...")
			sh.handleReload()
		}
	}
}

// gracefulShutdown runs every registered shutdown callback, most-recently-registered first.
func (sh *SignalHandler) gracefulShutdown() {
	sh.shutdownOnce.Do(func() {
		close(sh.shutdownChan)

		sh.logger.Println("Starting graceful shutdown sequence...")

		ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
		defer cancel()

		sh.mutex.RLock()
		callbacks := make([]func() error, len(sh.shutdownCallbacks))
		copy(callbacks, sh.shutdownCallbacks)
		sh.mutex.RUnlock()

		for i := len(callbacks) - 1; i >= 0; i-- {
			func() {
				defer func() {
					if r := recover(); r != nil {
						sh.logger.Printf("Panic during shutdown callback: %v", r)
					}
				}()

				callbackDone := make(chan error, 1)
				go func() {
					callbackDone <- callbacks[i]()
				}()

				select {
				case err := <-callbackDone:
					if err != nil {
						sh.logger.Printf("Error during shutdown callback: %v", err)
					}
				case <-ctx.Done():
					sh.logger.Printf("Shutdown callback timed out")
				}
			}()
		}

		sh.logger.Println("Graceful shutdown completed")
		os.Exit(0)
	})
}

// handleReload reloads CLI configuration in response to SIGHUP.
func (sh *SignalHandler) handleReload() {
	config := GetCLIConfig()
	if err := config.Load(); err != nil {
		sh.logger.Printf("Error reloading configuration: %v", err)
		return
	}

	sh.logger.Println("Configuration reloaded successfully")
}

// IsShuttingDown returns true if shutdown has been initiated
func (sh *SignalHandler) IsShuttingDown() bool {
	select {
	case <-sh.shutdownChan:
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until shutdown is initiated
func (sh *SignalHandler) WaitForShutdown() {
	<-sh.shutdownChan
}

// Global signal handler instance
var globalSignalHandler *SignalHandler
var shMutex sync.Mutex

// GetGlobalSignalHandler returns the global signal handler instance
func GetGlobalSignalHandler() *SignalHandler {
	shMutex.Lock()
	defer shMutex.Unlock()

	if globalSignalHandler == nil {
		globalSignalHandler = NewSignalHandler()
		globalSignalHandler.StartSignalHandling()
	}

	return globalSignalHandler
}
