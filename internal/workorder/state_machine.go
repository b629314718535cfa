package workorder

// AllowTransition 定义工单状态机的允许流转关系（有向图）。
// 这是唯一的权威表，Service.Transition 只认它。
var AllowTransition = map[Status][]Status{
	StatusNotStarted: {StatusInProgress, StatusRejected, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	// 终态：不允许从 completed / rejected / cancelled 再流转
	StatusCompleted: {},
	StatusRejected:  {},
	StatusCancelled: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// 不允许原地流转（from == to 也视为非法）。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
