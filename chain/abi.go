package chain

const hubABI = `[
  {
    "type": "function",
    "name": "viewTask",
    "stateMutability": "view",
    "inputs": [{"name": "_taskid", "type": "bytes32"}],
    "outputs": [{
      "name": "",
      "type": "tuple",
      "components": [
        {"name": "status", "type": "uint8"},
        {"name": "dealid", "type": "bytes32"},
        {"name": "idx", "type": "uint256"},
        {"name": "timeref", "type": "uint256"},
        {"name": "contributionDeadline", "type": "uint256"},
        {"name": "revealDeadline", "type": "uint256"},
        {"name": "finalDeadline", "type": "uint256"},
        {"name": "consensusValue", "type": "bytes32"},
        {"name": "revealCounter", "type": "uint256"},
        {"name": "winnerCounter", "type": "uint256"},
        {"name": "contributors", "type": "address[]"},
        {"name": "resultDigest", "type": "bytes32"},
        {"name": "results", "type": "bytes"},
        {"name": "resultsTimestamp", "type": "uint256"},
        {"name": "resultsCallback", "type": "bytes"}
      ]
    }]
  },
  {
    "type": "function",
    "name": "viewDeal",
    "stateMutability": "view",
    "inputs": [{"name": "_id", "type": "bytes32"}],
    "outputs": [{
      "name": "",
      "type": "tuple",
      "components": [
        {"name": "app", "type": "tuple", "components": [
          {"name": "pointer", "type": "address"},
          {"name": "owner", "type": "address"},
          {"name": "price", "type": "uint256"}
        ]},
        {"name": "dataset", "type": "tuple", "components": [
          {"name": "pointer", "type": "address"},
          {"name": "owner", "type": "address"},
          {"name": "price", "type": "uint256"}
        ]},
        {"name": "workerpool", "type": "tuple", "components": [
          {"name": "pointer", "type": "address"},
          {"name": "owner", "type": "address"},
          {"name": "price", "type": "uint256"}
        ]},
        {"name": "trust", "type": "uint256"},
        {"name": "category", "type": "uint256"},
        {"name": "tag", "type": "bytes32"},
        {"name": "requester", "type": "address"},
        {"name": "beneficiary", "type": "address"},
        {"name": "callback", "type": "address"},
        {"name": "params", "type": "string"},
        {"name": "startTime", "type": "uint256"},
        {"name": "botFirst", "type": "uint256"},
        {"name": "botSize", "type": "uint256"},
        {"name": "workerStake", "type": "uint256"},
        {"name": "schedulerRewardRatio", "type": "uint256"},
        {"name": "sponsor", "type": "address"}
      ]
    }]
  }
]`

const appABI = `[
  {"type": "function", "name": "owner", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
  {"type": "function", "name": "m_appMultiaddr", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes"}]},
  {"type": "function", "name": "m_appChecksum", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes32"}]},
  {"type": "function", "name": "m_appMREnclave", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes"}]}
]`

const datasetABI = `[
  {"type": "function", "name": "owner", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
  {"type": "function", "name": "m_datasetMultiaddr", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes"}]},
  {"type": "function", "name": "m_datasetChecksum", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes32"}]}
]`

const ownableABI = `[
  {"type": "function", "name": "owner", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]}
]`
