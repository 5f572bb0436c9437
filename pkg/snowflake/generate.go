package snowflake

import (
	"errors"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node   *snowflake.Node
	nodeMu sync.Mutex

	errInvalidMachineID    = errors.New("invalid snowflake machine id")
	errInvalidDataCenterID = errors.New("invalid snowflake datacenter id")
)

// Init 用 datacenterID 和 machineID（均为 0~31）组成节点号
func Init(machineID, dataCenterID int64) error {
	if machineID < 0 || machineID > 31 {
		return errInvalidMachineID
	}
	if dataCenterID < 0 || dataCenterID > 31 {
		return errInvalidDataCenterID
	}

	n, err := snowflake.NewNode((dataCenterID << 5) | machineID)
	if err != nil {
		return err
	}

	nodeMu.Lock()
	node = n
	nodeMu.Unlock()
	return nil
}

func current() (*snowflake.Node, error) {
	nodeMu.Lock()
	defer nodeMu.Unlock()

	if node == nil {
		// 未显式初始化时（测试、单进程）使用 0 号节点
		n, err := snowflake.NewNode(0)
		if err != nil {
			return nil, err
		}
		node = n
	}
	return node, nil
}

func NextID() (int64, error) {
	n, err := current()
	if err != nil {
		return 0, err
	}
	return n.Generate().Int64(), nil
}

// NextString 生成字符串形式的 ID，用作消息 ID
func NextString() (string, error) {
	id, err := NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}
