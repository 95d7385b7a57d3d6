package utils

import "fmt"

func ProgressKey(tokenID string) string {
	return fmt.Sprintf("token_analyzer:progress:%s", tokenID)
}

func TokenInfoKey(tokenID string) string {
	return fmt.Sprintf("token_analyzer:token_info:%s", tokenID)
}

func HolderDocID(tokenID, account string) string {
	return fmt.Sprintf("%s_%s", tokenID, account)
}

func TransferDocID(tokenID, transactionID string) string {
	return fmt.Sprintf("%s_%s", tokenID, transactionID)
}
