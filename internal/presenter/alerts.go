package presenter

// SettingsHint はカメラへのアクセス権限がない場合の案内
const SettingsHint = "カメラへのアクセスを許可するには、ユーザーを video グループに追加するか、権限の記録ファイルを削除して再起動してください"

// PermissionDeniedAlert はカメラへのアクセスが拒否された場合のアラート
// 「設定」を選ぶと openSettings が呼ばれる
func PermissionDeniedAlert(openSettings func()) Alert {
	return Alert{
		Kind:    KindPermissionDenied,
		Title:   "CameraLink",
		Message: "カメラへのアクセス権限がありません。プライバシー設定を変更してください",
		Actions: []Action{
			NewAction("OK", StyleCancel, nil),
			NewAction("設定", StyleDefault, openSettings),
		},
	}
}

// ConfigurationFailedAlert は外部デバイスが見つからない場合の致命的なアラート
// 「OK」を選ぶと terminate が呼ばれる
func ConfigurationFailedAlert(terminate func()) Alert {
	return Alert{
		Kind:    KindConfigurationFailed,
		Title:   "外部デバイスが検出できません",
		Message: "キャプチャカードを挿し直し、対応機種であることを確認してください。「OK」でアプリを終了します",
		Actions: []Action{
			NewAction("OK", StyleCancel, terminate),
		},
	}
}

// RefreshedNotice は映像を再接続したお知らせ
func RefreshedNotice() Alert {
	return Alert{Kind: KindRefreshed, Title: "映像を再接続しました"}
}

// RecordingNotice は録画が未実装であるお知らせ
func RecordingNotice() Alert {
	return Alert{Kind: KindRecordingNotImplemented, Title: "録画機能は開発中です..."}
}
