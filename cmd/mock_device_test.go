package cmd

import (
	"time"

	"github.com/stretchr/testify/mock"

	"firestige.xyz/nocrw/pkg/nocrw"
)

type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Read(chip, module uint8, addr uint32, length int) ([]byte, error) {
	args := m.Called(chip, module, addr, length)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDevice) Write(chip, module uint8, addr uint32, data []byte, burst bool) error {
	args := m.Called(chip, module, addr, data, burst)
	return args.Error(0)
}

func (m *MockDevice) Send(version, chip, module uint8, endpoint uint32, data []byte) error {
	args := m.Called(version, chip, module, endpoint, data)
	return args.Error(0)
}

func (m *MockDevice) Receive(timeout time.Duration) ([]byte, error) {
	args := m.Called(timeout)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDevice) Stats() nocrw.Stats {
	args := m.Called()
	return args.Get(0).(nocrw.Stats)
}

func (m *MockDevice) Close() error {
	args := m.Called()
	return args.Error(0)
}
