package model

import "errors"

// ポータルのコアが返すエラーの分類です
// いずれもプロセスを停止させるものではありません
var (
	// ErrNetworkUnavailable はリモートストアへの通信に失敗したことを表します
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrExpiredReservation はチェックアウト日時を過ぎた予約での認証を表します
	ErrExpiredReservation = errors.New("reservation expired")
	// ErrPinNotFound はローカルにもリモートにも一致するPINがないことを表します
	ErrPinNotFound = errors.New("pin not found")
	// ErrEmptyInput は空の入力を表します
	ErrEmptyInput = errors.New("empty input")
	// ErrUnknownItem はチェックリストに存在しない項目IDを表します
	ErrUnknownItem = errors.New("unknown checklist item")
	// ErrCorruptState は日付が解釈できない予約データを表します
	ErrCorruptState = errors.New("corrupt reservation state")
	// ErrInvalidReservation は管理者が入力した予約データの検証エラーを表します
	ErrInvalidReservation = errors.New("invalid reservation")
	// ErrNotEligible はチェックリストが完了していない状態でのチェックアウトを表します
	ErrNotEligible = errors.New("checkout checklist incomplete")
	// ErrStaleState は取得中に予約が変更されたため取得結果を破棄したことを表します
	ErrStaleState = errors.New("stale remote state")
)
