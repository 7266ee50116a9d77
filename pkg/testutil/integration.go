package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bureau14/qdbbatch/pkg/engine/memengine"
)

// EngineSuite provides a fresh reference engine and context per test.
type EngineSuite struct {
	suite.Suite
	Engine *memengine.Engine

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// SuiteFlushInterval is the async flush interval of suite engines.
const SuiteFlushInterval = 20 * time.Millisecond

// SetupTest runs before each test in the suite
func (s *EngineSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	s.startTime = time.Now()

	eng, err := memengine.New(
		memengine.WithLogger(TestLogger(s.T())),
		memengine.WithFlushInterval(SuiteFlushInterval))
	require.NoError(s.T(), err)
	s.Engine = eng
}

// TearDownTest runs after each test in the suite
func (s *EngineSuite) TearDownTest() {
	s.cancel()
	require.NoError(s.T(), s.Engine.Close())
	s.T().Logf("test completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *EngineSuite) Context() context.Context {
	return s.ctx
}
