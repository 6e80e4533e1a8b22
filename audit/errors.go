package audit

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

var (
	ErrConfig = errcode.Register(errcode.New(errcode.ModuleAudit, 1,
		"audit", "error.audit.config", "invalid audit configuration", http.StatusBadRequest))
	ErrWrite = errcode.Register(errcode.New(errcode.ModuleAudit, 2,
		"audit", "error.audit.write", "audit write failed"))
)
