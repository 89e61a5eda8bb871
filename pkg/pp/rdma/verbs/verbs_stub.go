//go:build !linux

package verbs

import "errors"

// ErrPlatformNotSupported is returned everywhere on platforms without
// libibverbs (the RDMA backends are Linux-only).
var ErrPlatformNotSupported = errors.New("verbs: RDMA is only supported on linux")

type Context struct{}
type PD struct{}
type MR struct{ LKey uint32 }
type CQ struct{}
type QP struct{}
type AH struct{}
type WC struct {
	WRID         uint64
	Status       int
	OpSend       bool
	HasTimestamp bool
	TimestampNS  uint64
}
type CQEx struct{}
type QPType int

const (
	QPTypeRC QPType = iota
	QPTypeUD
)

func OpenFirstDevice() (*Context, error) { return nil, ErrPlatformNotSupported }

func (c *Context) QueryPortLID(port uint8) (uint16, error)    { return 0, ErrPlatformNotSupported }
func (c *Context) QueryGID(port uint8, gidx int) ([16]byte, error) {
	return [16]byte{}, ErrPlatformNotSupported
}
func (c *Context) QueryPortIsInfiniBand(port uint8) (bool, error) {
	return false, ErrPlatformNotSupported
}
func (c *Context) Close() error                          { return nil }
func (c *Context) AllocPD() (*PD, error)                 { return nil, ErrPlatformNotSupported }
func (c *Context) CreateCQ(size int) (*CQ, error)         { return nil, ErrPlatformNotSupported }
func (c *Context) CreateCQEx(size int) (*CQEx, error)     { return nil, ErrPlatformNotSupported }
func (c *CQEx) AsCQ() *CQ                                 { return &CQ{} }
func (c *CQEx) Destroy() error                            { return nil }
func (c *CQEx) Poll(out []WC) (int, error)                { return 0, ErrPlatformNotSupported }
func (p *PD) Dealloc() error                             { return nil }
func (p *PD) RegisterMR(buf []byte) (*MR, error)          { return nil, ErrPlatformNotSupported }
func (p *PD) CreateQP(cq *CQ, t QPType, sw, rw uint32) (*QP, error) {
	return nil, ErrPlatformNotSupported
}
func (p *PD) CreateAH(port, sl uint8, gidx int, dlid uint16, dgid *[16]byte) (*AH, error) {
	return nil, ErrPlatformNotSupported
}
func (m *MR) Dereg() error                         { return nil }
func (c *CQ) Destroy() error                       { return nil }
func (c *CQ) Poll(out []WC) (int, error)           { return 0, ErrPlatformNotSupported }
func (q *QP) QPN() uint32                          { return 0 }
func (q *QP) ModifyInit(port uint8, qkey uint32) error { return ErrPlatformNotSupported }
func (q *QP) ModifyRTR(port, sl uint8, gidx int, dlid uint16, dqpn, dpsn uint32, dgid *[16]byte) error {
	return ErrPlatformNotSupported
}
func (q *QP) ModifyRTS(psn uint32) error { return ErrPlatformNotSupported }
func (q *QP) PostSend(wrID uint64, buf []byte, lkey uint32, ah *AH, remoteQPN, remoteQKey uint32) error {
	return ErrPlatformNotSupported
}
func (q *QP) PostRecv(wrID uint64, buf []byte, lkey uint32) error { return ErrPlatformNotSupported }
func (q *QP) Destroy() error                                     { return nil }
func (a *AH) Destroy() error                                     { return nil }
