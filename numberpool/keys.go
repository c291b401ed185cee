package numberpool

import "fmt"

const initLockName = "Pool Init"

func freeKey(poolID int64) string { return fmt.Sprintf("Pool: %d / Free", poolID) }

func takenKey(poolID int64) string { return fmt.Sprintf("Pool: %d / Taken", poolID) }

func sidHashKey(poolID int64) string { return fmt.Sprintf("Pool: %d / SID Number Hash", poolID) }

func poolLockName(poolID int64) string { return fmt.Sprintf("Pool: %d / Lock", poolID) }

func poolPropertiesKey(poolID int64) string { return fmt.Sprintf("pool_properties:%d", poolID) }
