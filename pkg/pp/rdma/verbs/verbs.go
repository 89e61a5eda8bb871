//go:build linux

// Package verbs is a minimal cgo binding of the libibverbs C ABI: just
// enough device/PD/MR/CQ/QP surface for the RC and UD ping-pong backends.
// It follows the same cgo idiom as internal/ptime's scheduler binding —
// small C helper functions doing the struct plumbing libibverbs expects,
// thin Go wrappers doing the error translation.
package verbs

/*
#cgo LDFLAGS: -libverbs
#include <infiniband/verbs.h>
#include <stdlib.h>
#include <string.h>
#include <errno.h>

static struct ibv_context *pp_open_first_device(struct ibv_device ***list_out, int *n_out) {
	struct ibv_device **list = ibv_get_device_list(n_out);
	*list_out = list;
	if (!list || *n_out == 0) {
		return NULL;
	}
	return ibv_open_device(list[0]);
}

static int pp_query_port_lid(struct ibv_context *ctx, uint8_t port_num, uint16_t *lid) {
	struct ibv_port_attr attr;
	int rc = ibv_query_port(ctx, port_num, &attr);
	if (rc != 0) {
		return rc;
	}
	*lid = attr.lid;
	return 0;
}

static int pp_query_gid(struct ibv_context *ctx, uint8_t port_num, int gidx, union ibv_gid *gid) {
	return ibv_query_gid(ctx, port_num, gidx, gid);
}

static int pp_query_port_link_layer(struct ibv_context *ctx, uint8_t port_num, uint8_t *link_layer) {
	struct ibv_port_attr attr;
	int rc = ibv_query_port(ctx, port_num, &attr);
	if (rc != 0) {
		return rc;
	}
	*link_layer = attr.link_layer;
	return 0;
}

static struct ibv_qp *pp_create_qp(struct ibv_pd *pd, struct ibv_cq *cq, enum ibv_qp_type qp_type,
	uint32_t max_send_wr, uint32_t max_recv_wr) {
	struct ibv_qp_init_attr attr;
	memset(&attr, 0, sizeof(attr));
	attr.send_cq = cq;
	attr.recv_cq = cq;
	attr.qp_type = qp_type;
	attr.cap.max_send_wr = max_send_wr;
	attr.cap.max_recv_wr = max_recv_wr;
	attr.cap.max_send_sge = 1;
	attr.cap.max_recv_sge = 1;
	return ibv_create_qp(pd, &attr);
}

static int pp_modify_qp_init(struct ibv_qp *qp, uint8_t port_num, uint32_t qkey) {
	struct ibv_qp_attr attr;
	memset(&attr, 0, sizeof(attr));
	attr.qp_state = IBV_QPS_INIT;
	attr.pkey_index = 0;
	attr.port_num = port_num;
	int mask = IBV_QP_STATE | IBV_QP_PKEY_INDEX | IBV_QP_PORT;
	if (qp->qp_type == IBV_QPT_UD) {
		attr.qkey = qkey;
		mask |= IBV_QP_QKEY;
	} else {
		attr.qp_access_flags = IBV_ACCESS_LOCAL_WRITE;
		mask |= IBV_QP_ACCESS_FLAGS;
	}
	return ibv_modify_qp(qp, &attr, mask);
}

static int pp_modify_qp_rtr(struct ibv_qp *qp, uint8_t port_num, uint8_t sl, int gidx,
	uint16_t dlid, uint32_t dqpn, uint32_t dpsn, const uint8_t *dgid) {
	struct ibv_qp_attr attr;
	memset(&attr, 0, sizeof(attr));
	attr.qp_state = IBV_QPS_RTR;
	int mask = IBV_QP_STATE;

	if (qp->qp_type == IBV_QPT_RC) {
		attr.path_mtu = IBV_MTU_1024;
		attr.dest_qp_num = dqpn;
		attr.rq_psn = dpsn;
		attr.max_dest_rd_atomic = 1;
		attr.min_rnr_timer = 12;
		attr.ah_attr.is_global = dgid != NULL;
		attr.ah_attr.dlid = dlid;
		attr.ah_attr.sl = sl;
		attr.ah_attr.src_path_bits = 0;
		attr.ah_attr.port_num = port_num;
		if (dgid != NULL) {
			memcpy(attr.ah_attr.grh.dgid.raw, dgid, 16);
			attr.ah_attr.grh.sgid_index = gidx;
			attr.ah_attr.grh.hop_limit = 1;
		}
		mask |= IBV_QP_PATH_MTU | IBV_QP_DEST_QPN | IBV_QP_RQ_PSN |
			IBV_QP_MAX_DEST_RD_ATOMIC | IBV_QP_MIN_RNR_TIMER | IBV_QP_AV;
	}
	return ibv_modify_qp(qp, &attr, mask);
}

static int pp_modify_qp_rts(struct ibv_qp *qp, uint32_t psn) {
	struct ibv_qp_attr attr;
	memset(&attr, 0, sizeof(attr));
	attr.qp_state = IBV_QPS_RTS;
	attr.sq_psn = psn;
	int mask = IBV_QP_STATE | IBV_QP_SQ_PSN;
	if (qp->qp_type == IBV_QPT_RC) {
		attr.timeout = 14;
		attr.retry_cnt = 7;
		attr.rnr_retry = 7;
		attr.max_rd_atomic = 1;
		mask |= IBV_QP_TIMEOUT | IBV_QP_RETRY_CNT | IBV_QP_RNR_RETRY | IBV_QP_MAX_QP_RD_ATOMIC;
	}
	return ibv_modify_qp(qp, &attr, mask);
}

static int pp_post_send(struct ibv_qp *qp, uint64_t wr_id, void *buf, uint32_t len, uint32_t lkey,
	struct ibv_ah *ah, uint32_t remote_qpn, uint32_t remote_qkey) {
	struct ibv_sge sge;
	memset(&sge, 0, sizeof(sge));
	sge.addr = (uintptr_t)buf;
	sge.length = len;
	sge.lkey = lkey;

	struct ibv_send_wr wr;
	memset(&wr, 0, sizeof(wr));
	wr.wr_id = wr_id;
	wr.sg_list = &sge;
	wr.num_sge = 1;
	wr.opcode = IBV_WR_SEND;
	wr.send_flags = IBV_SEND_SIGNALED;
	if (ah != NULL) {
		wr.wr.ud.ah = ah;
		wr.wr.ud.remote_qpn = remote_qpn;
		wr.wr.ud.remote_qkey = remote_qkey;
	}

	struct ibv_send_wr *bad_wr = NULL;
	return ibv_post_send(qp, &wr, &bad_wr);
}

static struct ibv_cq_ex *pp_create_cq_ex(struct ibv_context *ctx, int size) {
	struct ibv_cq_init_attr_ex attr;
	memset(&attr, 0, sizeof(attr));
	attr.cqe = size;
	attr.wc_flags = IBV_WC_EX_WITH_COMPLETION_TIMESTAMP;
	return ibv_create_cq_ex(ctx, &attr);
}

// pp_poll_cq_ex drains up to max completions from an extended CQ using the
// start_poll/next_poll/end_poll cycle, filling parallel out arrays. It
// returns the count polled, or -1 on a start_poll error that isn't
// "no completions yet".
static int pp_poll_cq_ex(struct ibv_cq_ex *cq, int max, uint64_t *wr_ids, int *statuses,
	int *is_send, uint64_t *ts_ns, int *has_ts) {
	struct ibv_poll_cq_attr poll_attr;
	memset(&poll_attr, 0, sizeof(poll_attr));
	int rc = ibv_start_poll(cq, &poll_attr);
	if (rc == ENOENT) {
		return 0;
	}
	if (rc != 0) {
		return -1;
	}
	int n = 0;
	while (n < max) {
		wr_ids[n] = cq->wr_id;
		statuses[n] = cq->status;
		is_send[n] = (ibv_wc_read_opcode(cq) == IBV_WC_SEND);
		has_ts[n] = 1;
		ts_ns[n] = ibv_wc_read_completion_ts(cq);
		n++;
		if (ibv_next_poll(cq) != 0) {
			break;
		}
	}
	ibv_end_poll(cq);
	return n;
}

static int pp_post_recv(struct ibv_qp *qp, uint64_t wr_id, void *buf, uint32_t len, uint32_t lkey) {
	struct ibv_sge sge;
	memset(&sge, 0, sizeof(sge));
	sge.addr = (uintptr_t)buf;
	sge.length = len;
	sge.lkey = lkey;

	struct ibv_recv_wr wr;
	memset(&wr, 0, sizeof(wr));
	wr.wr_id = wr_id;
	wr.sg_list = &sge;
	wr.num_sge = 1;

	struct ibv_recv_wr *bad_wr = NULL;
	return ibv_post_recv(qp, &wr, &bad_wr);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type QPType int

const (
	QPTypeRC QPType = QPType(C.IBV_QPT_RC)
	QPTypeUD QPType = QPType(C.IBV_QPT_UD)
)

// Context wraps an opened RDMA device.
type Context struct {
	ctx  *C.struct_ibv_context
	list **C.struct_ibv_device
}

// OpenFirstDevice opens the first RDMA device libibverbs enumerates.
// There is no selection by name: the rc/ud backends always use this
// device, and --dev is informational only.
func OpenFirstDevice() (*Context, error) {
	var list **C.struct_ibv_device
	var n C.int
	ctx := C.pp_open_first_device(&list, &n)
	if ctx == nil {
		return nil, fmt.Errorf("verbs: no RDMA devices found")
	}
	return &Context{ctx: ctx, list: list}, nil
}

func (c *Context) QueryPortLID(port uint8) (uint16, error) {
	var lid C.uint16_t
	if rc := C.pp_query_port_lid(c.ctx, C.uint8_t(port), &lid); rc != 0 {
		return 0, fmt.Errorf("verbs: ibv_query_port: %d", rc)
	}
	return uint16(lid), nil
}

func (c *Context) QueryGID(port uint8, gidx int) ([16]byte, error) {
	var gid C.union_ibv_gid
	if rc := C.pp_query_gid(c.ctx, C.uint8_t(port), C.int(gidx), &gid); rc != 0 {
		return [16]byte{}, fmt.Errorf("verbs: ibv_query_gid: %d", rc)
	}
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = byte(gid.raw[i])
	}
	return out, nil
}

// QueryPortIsInfiniBand reports whether port's link layer is InfiniBand
// (as opposed to Ethernet/RoCE), per ibv_port_attr.link_layer. NodeInfo's
// LID-must-be-nonzero check only applies on InfiniBand: a RoCE port
// legitimately reports LID 0.
func (c *Context) QueryPortIsInfiniBand(port uint8) (bool, error) {
	var ll C.uint8_t
	if rc := C.pp_query_port_link_layer(c.ctx, C.uint8_t(port), &ll); rc != 0 {
		return false, fmt.Errorf("verbs: ibv_query_port: %d", rc)
	}
	return ll == C.IBV_LINK_LAYER_INFINIBAND, nil
}

func (c *Context) Close() error {
	if c.ctx != nil {
		C.ibv_close_device(c.ctx)
		c.ctx = nil
	}
	if c.list != nil {
		C.ibv_free_device_list(c.list)
		c.list = nil
	}
	return nil
}

// PD is a protection domain.
type PD struct{ pd *C.struct_ibv_pd }

func (c *Context) AllocPD() (*PD, error) {
	pd := C.ibv_alloc_pd(c.ctx)
	if pd == nil {
		return nil, fmt.Errorf("verbs: ibv_alloc_pd failed")
	}
	return &PD{pd: pd}, nil
}

func (p *PD) Dealloc() error {
	if p.pd == nil {
		return nil
	}
	if rc := C.ibv_dealloc_pd(p.pd); rc != 0 {
		return fmt.Errorf("verbs: ibv_dealloc_pd: %d", rc)
	}
	p.pd = nil
	return nil
}

// MR is a registered memory region.
type MR struct {
	mr   *C.struct_ibv_mr
	LKey uint32
}

// RegisterMR registers buf (which the caller must keep alive and not move
// for the MR's lifetime) for local writes.
func (p *PD) RegisterMR(buf []byte) (*MR, error) {
	mr := C.ibv_reg_mr(p.pd, unsafe.Pointer(&buf[0]), C.size_t(len(buf)), C.IBV_ACCESS_LOCAL_WRITE)
	if mr == nil {
		return nil, fmt.Errorf("verbs: ibv_reg_mr failed")
	}
	return &MR{mr: mr, LKey: uint32(mr.lkey)}, nil
}

func (m *MR) Dereg() error {
	if m.mr == nil {
		return nil
	}
	if rc := C.ibv_dereg_mr(m.mr); rc != 0 {
		return fmt.Errorf("verbs: ibv_dereg_mr: %d", rc)
	}
	m.mr = nil
	return nil
}

// CQ is a completion queue.
type CQ struct{ cq *C.struct_ibv_cq }

func (c *Context) CreateCQ(size int) (*CQ, error) {
	cq := C.ibv_create_cq(c.ctx, C.int(size), nil, nil, 0)
	if cq == nil {
		return nil, fmt.Errorf("verbs: ibv_create_cq failed")
	}
	return &CQ{cq: cq}, nil
}

func (c *CQ) Destroy() error {
	if c.cq == nil {
		return nil
	}
	if rc := C.ibv_destroy_cq(c.cq); rc != 0 {
		return fmt.Errorf("verbs: ibv_destroy_cq: %d", rc)
	}
	c.cq = nil
	return nil
}

// WC is a polled work completion. TimestampNS and HasTimestamp are only
// ever populated by a CQEx poll.
type WC struct {
	WRID         uint64
	Status       int
	OpSend       bool
	HasTimestamp bool
	TimestampNS  uint64
}

// Poll drains up to len(out) completions without blocking. The RC/UD poll
// loops call this in a tight loop and treat zero completions as
// "no entry yet", matching ibv_poll_cq's busy-poll contract.
func (c *CQ) Poll(out []WC) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	wc := make([]C.struct_ibv_wc, len(out))
	n := C.ibv_poll_cq(c.cq, C.int(len(out)), &wc[0])
	if n < 0 {
		return 0, fmt.Errorf("verbs: ibv_poll_cq failed")
	}
	for i := 0; i < int(n); i++ {
		out[i] = WC{
			WRID:   uint64(wc[i].wr_id),
			Status: int(wc[i].status),
			OpSend: C.enum_ibv_wc_opcode(wc[i].opcode) == C.IBV_WC_SEND,
		}
	}
	return int(n), nil
}

// CQEx is a completion queue created with the completion-timestamp
// extension, used by the RC server so ts[1] can be stamped from hardware
// receive time rather than a post-poll software read of the clock.
type CQEx struct{ cq *C.struct_ibv_cq_ex }

func (c *Context) CreateCQEx(size int) (*CQEx, error) {
	cq := C.pp_create_cq_ex(c.ctx, C.int(size))
	if cq == nil {
		return nil, fmt.Errorf("verbs: ibv_create_cq_ex failed")
	}
	return &CQEx{cq: cq}, nil
}

// AsCQ returns the ordinary ibv_cq handle backing this extended CQ, for
// passing to ibv_create_qp's send_cq/recv_cq.
func (c *CQEx) AsCQ() *CQ {
	return &CQ{cq: C.ibv_cq_ex_to_cq(c.cq)}
}

func (c *CQEx) Destroy() error {
	if c.cq == nil {
		return nil
	}
	if rc := C.ibv_destroy_cq(C.ibv_cq_ex_to_cq(c.cq)); rc != 0 {
		return fmt.Errorf("verbs: ibv_destroy_cq: %d", rc)
	}
	c.cq = nil
	return nil
}

// Poll drains up to len(out) completions, each carrying its hardware
// completion timestamp.
func (c *CQEx) Poll(out []WC) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	n := len(out)
	wrIDs := make([]C.uint64_t, n)
	statuses := make([]C.int, n)
	isSend := make([]C.int, n)
	tsNS := make([]C.uint64_t, n)
	hasTS := make([]C.int, n)

	got := C.pp_poll_cq_ex(c.cq, C.int(n), &wrIDs[0], &statuses[0], &isSend[0], &tsNS[0], &hasTS[0])
	if got < 0 {
		return 0, fmt.Errorf("verbs: ibv_start_poll failed")
	}
	for i := 0; i < int(got); i++ {
		out[i] = WC{
			WRID:         uint64(wrIDs[i]),
			Status:       int(statuses[i]),
			OpSend:       isSend[i] != 0,
			HasTimestamp: hasTS[i] != 0,
			TimestampNS:  uint64(tsNS[i]),
		}
	}
	return int(got), nil
}

// QP is a queue pair.
type QP struct {
	qp     *C.struct_ibv_qp
	qpType QPType
}

func (p *PD) CreateQP(cq *CQ, qpType QPType, maxSendWR, maxRecvWR uint32) (*QP, error) {
	qp := C.pp_create_qp(p.pd, cq.cq, C.enum_ibv_qp_type(qpType), C.uint32_t(maxSendWR), C.uint32_t(maxRecvWR))
	if qp == nil {
		return nil, fmt.Errorf("verbs: ibv_create_qp failed")
	}
	return &QP{qp: qp, qpType: qpType}, nil
}

func (q *QP) QPN() uint32 { return uint32(q.qp.qp_num) }

func (q *QP) ModifyInit(port uint8, qkey uint32) error {
	if rc := C.pp_modify_qp_init(q.qp, C.uint8_t(port), C.uint32_t(qkey)); rc != 0 {
		return fmt.Errorf("verbs: modify INIT: %d", rc)
	}
	return nil
}

// ModifyRTR transitions to Ready-To-Receive using the peer's node info.
// dgid is nil to use an LID-only (non-global) address, which is the
// common case on InfiniBand fabrics without RoCE.
func (q *QP) ModifyRTR(port, sl uint8, gidx int, dlid uint16, dqpn, dpsn uint32, dgid *[16]byte) error {
	var gidPtr *C.uint8_t
	if dgid != nil {
		gidPtr = (*C.uint8_t)(unsafe.Pointer(&dgid[0]))
	}
	if rc := C.pp_modify_qp_rtr(q.qp, C.uint8_t(port), C.uint8_t(sl), C.int(gidx),
		C.uint16_t(dlid), C.uint32_t(dqpn), C.uint32_t(dpsn), gidPtr); rc != 0 {
		return fmt.Errorf("verbs: modify RTR: %d", rc)
	}
	return nil
}

func (q *QP) ModifyRTS(psn uint32) error {
	if rc := C.pp_modify_qp_rts(q.qp, C.uint32_t(psn)); rc != 0 {
		return fmt.Errorf("verbs: modify RTS: %d", rc)
	}
	return nil
}

func (q *QP) PostSend(wrID uint64, buf []byte, lkey uint32, ah *AH, remoteQPN, remoteQKey uint32) error {
	var ahPtr *C.struct_ibv_ah
	if ah != nil {
		ahPtr = ah.ah
	}
	if rc := C.pp_post_send(q.qp, C.uint64_t(wrID), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)),
		C.uint32_t(lkey), ahPtr, C.uint32_t(remoteQPN), C.uint32_t(remoteQKey)); rc != 0 {
		return fmt.Errorf("verbs: ibv_post_send: %d", rc)
	}
	return nil
}

func (q *QP) PostRecv(wrID uint64, buf []byte, lkey uint32) error {
	if rc := C.pp_post_recv(q.qp, C.uint64_t(wrID), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)), C.uint32_t(lkey)); rc != 0 {
		return fmt.Errorf("verbs: ibv_post_recv: %d", rc)
	}
	return nil
}

func (q *QP) Destroy() error {
	if q.qp == nil {
		return nil
	}
	if rc := C.ibv_destroy_qp(q.qp); rc != 0 {
		return fmt.Errorf("verbs: ibv_destroy_qp: %d", rc)
	}
	q.qp = nil
	return nil
}

// AH is an address handle, used by UD sends to name a destination without
// a connected queue pair.
type AH struct{ ah *C.struct_ibv_ah }

func (p *PD) CreateAH(port, sl uint8, gidx int, dlid uint16, dgid *[16]byte) (*AH, error) {
	var attr C.struct_ibv_ah_attr
	attr.dlid = C.uint16_t(dlid)
	attr.sl = C.uint8_t(sl)
	attr.port_num = C.uint8_t(port)
	if dgid != nil {
		attr.is_global = 1
		attr.grh.sgid_index = C.uint8_t(gidx)
		attr.grh.hop_limit = 1
		for i := 0; i < 16; i++ {
			attr.grh.dgid.raw[i] = C.uint8_t(dgid[i])
		}
	}
	ah := C.ibv_create_ah(p.pd, &attr)
	if ah == nil {
		return nil, fmt.Errorf("verbs: ibv_create_ah failed")
	}
	return &AH{ah: ah}, nil
}

func (a *AH) Destroy() error {
	if a.ah == nil {
		return nil
	}
	if rc := C.ibv_destroy_ah(a.ah); rc != 0 {
		return fmt.Errorf("verbs: ibv_destroy_ah: %d", rc)
	}
	a.ah = nil
	return nil
}
