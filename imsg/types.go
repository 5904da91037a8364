package imsg

import "fmt"

type Type uint32

const (
	TypeNone Type = iota

	// control socket
	CtlOK
	CtlFail
	CtlEnd
	CtlShowDatabase
	CtlShowRib
	CtlShowSummary
	CtlArea
	CtlLSA
	CtlRib
	CtlSummary

	// privileged parent
	KRouteChange
	KRouteDelete
	KRouteGet
	NetworkAdd
	NetworkDel
	IfaceAdd
	IfaceDelete
	IfaceAddrNew
	IfaceAddrDel
	ReconfConf
	ReconfArea
	ReconfEnd

	// adjacency engine
	NeighborUp
	NeighborDown
	NeighborChange
	IfaceInfo
	DBSnapshot
	DBEnd
	DD
	DDEnd
	DDBadLSA
	LSReq
	LSUpd
	LSSnap
	LSAck
	LSFlood
	LSBadReq
	LSMaxAge
)

var typeNames = map[Type]string{
	TypeNone:        "none",
	CtlOK:           "ctl-ok",
	CtlFail:         "ctl-fail",
	CtlEnd:          "ctl-end",
	CtlShowDatabase: "ctl-show-database",
	CtlShowRib:      "ctl-show-rib",
	CtlShowSummary:  "ctl-show-summary",
	CtlArea:         "ctl-area",
	CtlLSA:          "ctl-lsa",
	CtlRib:          "ctl-rib",
	CtlSummary:      "ctl-summary",
	KRouteChange:    "kroute-change",
	KRouteDelete:    "kroute-delete",
	KRouteGet:       "kroute-get",
	NetworkAdd:      "network-add",
	NetworkDel:      "network-del",
	IfaceAdd:        "iface-add",
	IfaceDelete:     "iface-delete",
	IfaceAddrNew:    "iface-addr-new",
	IfaceAddrDel:    "iface-addr-del",
	ReconfConf:      "reconf-conf",
	ReconfArea:      "reconf-area",
	ReconfEnd:       "reconf-end",
	NeighborUp:      "neighbor-up",
	NeighborDown:    "neighbor-down",
	NeighborChange:  "neighbor-change",
	IfaceInfo:       "iface-info",
	DBSnapshot:      "db-snapshot",
	DBEnd:           "db-end",
	DD:              "dd",
	DDEnd:           "dd-end",
	DDBadLSA:        "dd-bad-lsa",
	LSReq:           "ls-req",
	LSUpd:           "ls-upd",
	LSSnap:          "ls-snap",
	LSAck:           "ls-ack",
	LSFlood:         "ls-flood",
	LSBadReq:        "ls-badreq",
	LSMaxAge:        "ls-maxage",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("imsg(%d)", uint32(t))
}
