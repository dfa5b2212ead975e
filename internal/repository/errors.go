package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgreSQLのエラークラス・コード
const (
	pqClassConnectionException = "08"    // 接続障害
	pqCodeUniqueViolation      = "23505" // 一意制約違反
)

// wrapDBError はデータベースエラーを呼び出し側向けに変換する。
// 接続障害系のエラーはSTORAGE_UNAVAILABLEとして型付けし、
// それ以外は文脈を付けてラップする。
func wrapDBError(op string, err error) error {
	if isConnectionError(err) {
		return model.NewStorageUnavailableError()
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isConnectionError はエラーがストレージ接続障害かどうかを判定する。
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == pqClassConnectionException
	}
	return false
}

// uniqueViolationConstraint はerrが一意制約違反の場合、違反した制約名を返す。
func uniqueViolationConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqCodeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
