package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE分类：08类为连接异常，57类为管理员中断（57P01 admin_shutdown等）
const (
	pgClassConnection = "08"
	pgClassShutdown   = "57"
)

// IsConnectionError 判断错误是否属于连接类故障。
// 只有这类错误才计入熔断器：连接重置/拒绝、超时、数据库终止码。
// 应用级错误（SQL语法、约束冲突）不计入，避免业务bug误触发熔断。
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		return class == pgClassConnection || class == pgClassShutdown
	}

	// 驱动在部分路径上只返回文本错误，兜底做字符串匹配
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"connection timed out",
		"bad connection",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}

	return false
}
