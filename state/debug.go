package state

var (
	DBG_log_spf   = false
	DBG_log_flood = false
	DBG_log_rib   = false
	DBG_debug     = false
)
