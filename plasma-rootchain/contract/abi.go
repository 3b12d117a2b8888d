package contract

const rootChainABI = `[
	{"type": "function", "name": "operator", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"},
	{"type": "function", "name": "submitBlock", "inputs": [{"name": "_blockRoot", "type": "bytes32"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "nextChildBlock", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "getDepositBlockNumber", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "blocks", "inputs": [{"name": "", "type": "uint256"}], "outputs": [{"name": "root", "type": "bytes32"}, {"name": "timestamp", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "deposit", "inputs": [{"name": "_depositTx", "type": "bytes"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "depositFrom", "inputs": [{"name": "_depositTx", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "startStandardExit", "inputs": [{"name": "_utxoPos", "type": "uint192"}, {"name": "_rlpTx", "type": "bytes"}, {"name": "_txInclusionProof", "type": "bytes"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "startDepositExit", "inputs": [{"name": "_depositPos", "type": "uint256"}, {"name": "_token", "type": "address"}, {"name": "_amount", "type": "uint256"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "challengeStandardExit", "inputs": [{"name": "_standardExitId", "type": "uint192"}, {"name": "_challengeTx", "type": "bytes"}, {"name": "_inputIndex", "type": "uint8"}, {"name": "_challengeTxSig", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "startFeeExit", "inputs": [{"name": "_token", "type": "address"}, {"name": "_amount", "type": "uint256"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "currentFeeExit", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "exits", "inputs": [{"name": "", "type": "uint192"}], "outputs": [{"name": "owner", "type": "address"}, {"name": "token", "type": "address"}, {"name": "amount", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "startInFlightExit", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_inputTxs", "type": "bytes"}, {"name": "_inputTxsInclusionProofs", "type": "bytes"}, {"name": "_inFlightTxSigs", "type": "bytes"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "piggybackInFlightExit", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_outputIndex", "type": "uint8"}], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "challengeInFlightExitNotCanonical", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_inFlightTxInputIndex", "type": "uint8"}, {"name": "_competingTx", "type": "bytes"}, {"name": "_competingTxInputIndex", "type": "uint8"}, {"name": "_competingTxPos", "type": "uint256"}, {"name": "_competingTxInclusionProof", "type": "bytes"}, {"name": "_competingTxSig", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "respondToNonCanonicalChallenge", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_inFlightTxPos", "type": "uint256"}, {"name": "_inFlightTxInclusionProof", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "challengeInFlightExitInputSpent", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_inFlightTxInputIndex", "type": "uint8"}, {"name": "_spendingTx", "type": "bytes"}, {"name": "_spendingTxInputIndex", "type": "uint8"}, {"name": "_spendingTxSig", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "challengeInFlightExitOutputSpent", "inputs": [{"name": "_inFlightTx", "type": "bytes"}, {"name": "_inFlightTxOutputPos", "type": "uint256"}, {"name": "_inFlightTxInclusionProof", "type": "bytes"}, {"name": "_spendingTx", "type": "bytes"}, {"name": "_spendingTxInputIndex", "type": "uint8"}, {"name": "_spendingTxSig", "type": "bytes"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "getUniqueId", "inputs": [{"name": "_tx", "type": "bytes"}], "outputs": [{"name": "", "type": "uint192"}], "stateMutability": "view"},
	{"type": "function", "name": "inFlightExits", "inputs": [{"name": "", "type": "uint192"}], "outputs": [{"name": "exitStartTimestamp", "type": "uint256"}, {"name": "exitMap", "type": "uint256"}, {"name": "bondOwner", "type": "address"}, {"name": "oldestCompetitor", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "getInFlightExitOutput", "inputs": [{"name": "_tx", "type": "bytes"}, {"name": "_outputIndex", "type": "uint8"}], "outputs": [{"name": "owner", "type": "address"}, {"name": "token", "type": "address"}, {"name": "amount", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "processExits", "inputs": [{"name": "_token", "type": "address"}, {"name": "_topExitId", "type": "uint192"}, {"name": "_exitsToProcess", "type": "uint256"}], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "standardExitBond", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "inFlightExitBond", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "piggybackBond", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "minExitPeriod", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"}
]`

const mintableTokenABI = `[
	{"type": "function", "name": "mint", "inputs": [{"name": "_to", "type": "address"}, {"name": "_amount", "type": "uint256"}], "outputs": [{"name": "", "type": "bool"}], "stateMutability": "nonpayable"},
	{"type": "function", "name": "approve", "inputs": [{"name": "_spender", "type": "address"}, {"name": "_value", "type": "uint256"}], "outputs": [{"name": "", "type": "bool"}], "stateMutability": "nonpayable"},
	{"type": "function", "name": "balanceOf", "inputs": [{"name": "_owner", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"}
]`
