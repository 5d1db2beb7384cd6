// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	f := testutil.AssertFailureKind(t, err, types.FailureValidation)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/lessonpipe/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertFailureKind 断言 err 是给定类别的 *types.Failure 并返回它
func AssertFailureKind(t testing.TB, err error, kind types.FailureKind) *types.Failure {
	t.Helper()

	var f *types.Failure
	require.True(t, errors.As(err, &f), "expected *types.Failure, got %T: %v", err, err)
	assert.Equal(t, kind, f.Kind, "failure: %v", f)
	return f
}

// AssertErrorCode 断言 err 链中含有给定错误码的 *types.Error
func AssertErrorCode(t testing.TB, err error, code types.ErrorCode) *types.Error {
	t.Helper()

	var te *types.Error
	require.True(t, errors.As(err, &te), "expected *types.Error, got %T: %v", err, err)
	assert.Equal(t, code, te.Code, "error: %v", te)
	return te
}

// AssertJSONEqual 断言两个值的 JSON 表示语义相等（忽略键顺序）
func AssertJSONEqual(t testing.TB, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, asJSON(t, expected), asJSON(t, actual))
}

func asJSON(t testing.TB, v any) string {
	t.Helper()
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	b, err := gojson.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := gojson.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := gojson.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
