//go:build !linux

package xdp

type ProgramAttacher interface {
	UpdateXSKMap(queueID uint32, sockFD int) error
	Close() error
}

func AttachProgram(objPath string, ifaceIndex int) (ProgramAttacher, error) {
	return nil, ErrPlatformNotSupported
}
